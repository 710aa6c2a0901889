package electrum

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
)

const specVersion = "2.0"

type request struct {
	ID     uint64        `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// MarshalJSON adds the version tag, electrum servers accept both 1.0 and 2.0
// style framing.
func (r *request) MarshalJSON() ([]byte, error) {
	type Alias request
	return json.Marshal(&struct {
		Version string `json:"jsonrpc"`
		*Alias
	}{
		Version: specVersion,
		Alias:   (*Alias)(r),
	})
}

// response is what the reader decodes from a single line. Id is kept raw so
// that string or null ids from notifications don't fail the decode.
type response struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
	Method string          `json:"method,omitempty"`
}

// id returns the numeric id of the response. ok is false for notifications
// and ids we never issue.
func (r *response) id() (uint64, bool) {
	if len(r.ID) == 0 || string(r.ID) == "null" {
		return 0, false
	}
	val, err := strconv.ParseUint(string(r.ID), 10, 64)
	if err != nil {
		return 0, false
	}
	return val, true
}

func encodeRequest(req *request) ([]byte, error) {
	if req.Params == nil {
		req.Params = []interface{}{}
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", req.Method)
	}
	return append(data, '\n'), nil
}

func decodeResponse(line []byte) (*response, error) {
	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, errors.Wrap(ErrProtocol, err.Error())
	}
	return &resp, nil
}
