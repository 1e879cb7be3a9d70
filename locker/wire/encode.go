package wire

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/samber/lo"
)

type MutationKind int

const (
	MutationCreate MutationKind = 1
	MutationUpdate MutationKind = 2
	MutationDelete MutationKind = 3
)

// Mutation is one operation of a batch. CorrelationID is client-chosen so
// the server's per-operation result can be matched back to intent; Record is
// the operation's positional payload.
type Mutation struct {
	Kind          MutationKind
	CorrelationID string
	Record        []any
}

type MutationBatch struct {
	Mutations []Mutation
}

func (b *MutationBatch) Add(m Mutation) {
	b.Mutations = append(b.Mutations, m)
}

// EncodeMutationBatch renders a batch in the service's outgoing positional
// style: one array per operation, kind code first, correlation id second,
// the operation's record appended.
func EncodeMutationBatch(b MutationBatch) ([]byte, error) {
	if len(b.Mutations) == 0 {
		return nil, errors.New("cannot encode empty mutation batch")
	}

	for i, m := range b.Mutations {
		switch m.Kind {
		case MutationCreate, MutationUpdate, MutationDelete:
		default:
			return nil, fmt.Errorf("unknown mutation kind %d at index %d", m.Kind, i)
		}
		if m.CorrelationID == "" {
			return nil, fmt.Errorf("mutation at index %d carries no correlation id", i)
		}
	}

	payload := lo.Map(b.Mutations, func(m Mutation, _ int) []any {
		op := make([]any, 0, 2+len(m.Record))
		op = append(op, int(m.Kind), m.CorrelationID)
		op = append(op, m.Record...)

		return op
	})

	raw, err := json.Marshal(payload)
	if nil != err {
		return nil, fmt.Errorf("failed to encode mutation batch: %v", err)
	}

	return raw, nil
}
