package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/xeptore/skylocker/unit"
)

// transfer streams the track's raw bytes to the granted session URL. No
// retry happens here: the body is a live stream and cannot be replayed.
func (p *Pipeline) transfer(
	ctx context.Context,
	logger zerolog.Logger,
	track Track,
	putURL string,
	size int64,
) (err error) {
	r, _, err := track.File.Open()
	if nil != err {
		return fmt.Errorf("failed to open track for transfer: %w", err)
	}
	defer func() {
		if closeErr := r.Close(); nil != closeErr {
			err = errors.Join(err, fmt.Errorf("failed to close track file: %v", closeErr))
		}
	}()

	mtype, err := mimetype.DetectReader(r)
	if nil != err {
		return fmt.Errorf("failed to detect track content type: %v", err)
	}
	if _, err := r.Seek(0, io.SeekStart); nil != err {
		return fmt.Errorf("failed to rewind track after content type detection: %v", err)
	}

	logger.Debug().
		Str("client_id", track.ClientID).
		Str("content_type", mtype.String()).
		Str("size", unit.FormatBytes(size)).
		Msg("Transferring track")

	header := make(http.Header, 1)
	header.Add("Content-Type", mtype.String())

	resp, err := p.transport.SendStream(
		ctx,
		http.MethodPut,
		putURL,
		header,
		r,
		size,
		time.Duration(p.conf.Timeouts.TransferTrack)*time.Second,
	)
	if nil != err {
		return fmt.Errorf("failed to stream track bytes: %w", err)
	}
	if resp.Status != http.StatusOK && resp.Status != http.StatusCreated {
		return fmt.Errorf("unexpected status code %d with body: %s", resp.Status, string(resp.Body))
	}

	logger.Info().
		Str("client_id", track.ClientID).
		Str("size", unit.FormatBytes(size)).
		Msg("Track transferred")

	return nil
}
