package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Operation selects what a request does.
type Operation string

const (
	OpRegister  Operation = "register"
	OpRecognize Operation = "recognize"
	OpClear     Operation = "clear"
)

// Credential is the api block of every request.
type Credential struct {
	Client string `json:"client"`
	Key    string `json:"key"`
}

// Envelope is the outer shape shared by all operations.
type Envelope struct {
	API  *Credential     `json:"api"`
	Data json.RawMessage `json:"data"`
}

// ID is a group or identity id. Clients send either JSON strings or numbers.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number")
	}
	*id = ID(n.String())
	return nil
}

// Request is one of RegisterRequest, RecognizeRequest or ClearRequest.
type Request interface {
	Operation() Operation
	Validate() error
}

// RegisterRequest stores or replaces the face of one identity.
type RegisterRequest struct {
	GroupID    ID     `json:"gid"`
	IdentityID ID     `json:"uid"`
	Info       string `json:"info"`
	Image      string `json:"img"`
}

func (r *RegisterRequest) Operation() Operation { return OpRegister }

func (r *RegisterRequest) Validate() error {
	if r.GroupID == "" || r.IdentityID == "" || r.Image == "" {
		return shapeError(OpRegister.missingFields())
	}
	r.Info = norm.NFC.String(r.Info)
	return nil
}

// RecognizeRequest matches the faces of an image against a group.
type RecognizeRequest struct {
	GroupID   ID       `json:"gid"`
	Threshold *float64 `json:"threshold"`
	Image     string   `json:"img"`
}

func (r *RecognizeRequest) Operation() Operation { return OpRecognize }

func (r *RecognizeRequest) Validate() error {
	if r.GroupID == "" || r.Threshold == nil || r.Image == "" {
		return shapeError(OpRecognize.missingFields())
	}
	if t := *r.Threshold; !(t > 0 && t < 1) {
		return shapeError("The threshold must be between 0 and 1.")
	}
	return nil
}

// ClearRequest drops the cached gallery of a group.
type ClearRequest struct {
	GroupID ID `json:"gid"`
}

func (r *ClearRequest) Operation() Operation { return OpClear }

func (r *ClearRequest) Validate() error {
	if r.GroupID == "" {
		return shapeError(OpClear.missingFields())
	}
	return nil
}

func (op Operation) missingFields() string {
	switch op {
	case OpRegister:
		return "The request data structure is incorrect. Fields gid, uid and img are required."
	case OpRecognize:
		return "The request data structure is incorrect. Fields gid, threshold and img are required."
	case OpClear:
		return "The request data structure is incorrect. Field gid is required."
	}
	return KindRequestShape.defaultMessage()
}

func (op Operation) newRequest() (Request, bool) {
	switch op {
	case OpRegister:
		return &RegisterRequest{}, true
	case OpRecognize:
		return &RecognizeRequest{}, true
	case OpClear:
		return &ClearRequest{}, true
	}
	return nil, false
}

// ParseEnvelope decodes the outer request and returns its credential and
// the still undecoded operation payload.
func ParseEnvelope(body []byte) (Credential, json.RawMessage, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Credential{}, nil, shapeError("Only accept json request format.")
	}
	data := bytes.TrimSpace(env.Data)
	if env.API == nil || env.API.Client == "" || env.API.Key == "" ||
		len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Credential{}, nil, shapeError(KindRequestShape.defaultMessage())
	}
	return *env.API, data, nil
}

// DecodeRequest decodes and validates the payload of op.
func DecodeRequest(op Operation, data json.RawMessage) (Request, error) {
	req, ok := op.newRequest()
	if !ok {
		return nil, shapeError(fmt.Sprintf("Unknown operation %q.", op))
	}
	if err := json.Unmarshal(data, req); err != nil {
		return nil, shapeError(KindRequestShape.defaultMessage())
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}
