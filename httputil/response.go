package httputil

import (
	"fmt"

	"github.com/goccy/go-json"
)

func IsTokenExpiredResponse(b []byte) (bool, error) {
	var body struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(b, &body); nil != err {
		return false, fmt.Errorf("failed to decode 401 status code response body: %v", err)
	}

	return body.Error.Code == 401 && body.Error.Message == "Token expired", nil
}

func IsTokenInvalidResponse(b []byte) (bool, error) {
	var body struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(b, &body); nil != err {
		return false, fmt.Errorf("failed to decode 401 status code response body: %v", err)
	}

	return body.Error.Code == 401 && body.Error.Message == "Invalid credentials", nil
}
