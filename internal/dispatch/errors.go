package dispatch

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/kozaktomas/vface/internal/auth"
	"github.com/kozaktomas/vface/internal/encoder"
	"github.com/kozaktomas/vface/internal/facematch"
	"github.com/kozaktomas/vface/internal/gallery"
)

// Kind classifies a failed request.
type Kind int

const (
	KindInternal Kind = iota
	KindRequestShape
	KindInvalidCredentials
	KindStoreUnavailable
	KindEncodingFailed
	KindEncoderUnavailable
	KindNoSuchGallery
	KindNoMatch
	KindNotFound
	KindStoreWriteFailed
	KindServerBusy
)

// ErrServerBusy rejects a request that found no free serving slot in time.
var ErrServerBusy = errors.New("server busy")

var kindNames = map[Kind]string{
	KindInternal:           "internal",
	KindRequestShape:       "request_shape",
	KindInvalidCredentials: "invalid_credentials",
	KindStoreUnavailable:   "store_unavailable",
	KindEncodingFailed:     "encoding_failed",
	KindEncoderUnavailable: "encoder_unavailable",
	KindNoSuchGallery:      "no_such_gallery",
	KindNoMatch:            "no_match",
	KindNotFound:           "not_found",
	KindStoreWriteFailed:   "store_write_failed",
	KindServerBusy:         "server_busy",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Status is the response status code reported for k.
func (k Kind) Status() int {
	switch k {
	case KindRequestShape:
		return http.StatusBadRequest
	case KindInvalidCredentials:
		return http.StatusUnauthorized
	case KindNoSuchGallery, KindNotFound:
		return http.StatusNotFound
	case KindEncodingFailed, KindNoMatch:
		return http.StatusUnprocessableEntity
	case KindEncoderUnavailable:
		return http.StatusBadGateway
	case KindStoreUnavailable, KindServerBusy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (k Kind) defaultMessage() string {
	switch k {
	case KindRequestShape:
		return "The request data structure is incorrect. Access denied."
	case KindInvalidCredentials:
		return "Invalid client id or key. Access denied."
	case KindStoreUnavailable:
		return "Database connection failed."
	case KindEncodingFailed:
		return "Encoding failed. There are no faces on the image."
	case KindEncoderUnavailable:
		return "Face encoder is unavailable."
	case KindNoSuchGallery:
		return "There are no registered faces in this group."
	case KindNoMatch:
		return "Face recognition is failed. No matched faces."
	case KindNotFound:
		return "The request data structure is incorrect or the data cache does not have relevant data."
	case KindStoreWriteFailed:
		return "Database request failed."
	case KindServerBusy:
		return "The server is busy. Try again later."
	default:
		return "Internal server error."
	}
}

// Error is a request failure with the message returned to the client.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Msg: kind.defaultMessage(), Err: err}
}

func shapeError(msg string) *Error {
	return &Error{Kind: KindRequestShape, Msg: msg}
}

// classify maps an error raised while serving a request onto its Kind.
func classify(err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return newError(KindInvalidCredentials, err)
	case errors.Is(err, auth.ErrStoreUnavailable):
		return newError(KindStoreUnavailable, err)
	case errors.Is(err, gallery.ErrNoSuchGallery):
		return newError(KindNoSuchGallery, err)
	case errors.Is(err, gallery.ErrNotFound):
		return newError(KindNotFound, err)
	case errors.Is(err, facematch.ErrNoMatch):
		return newError(KindNoMatch, err)
	case errors.Is(err, encoder.ErrNoFace):
		return newError(KindEncodingFailed, err)
	default:
		return newError(KindInternal, err)
	}
}
