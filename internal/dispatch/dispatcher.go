// Package dispatch is the single entry point for API requests: it parses and
// authenticates each request, runs the selected operation and reports every
// outcome to the audit log.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/vface/internal/database"
	"github.com/kozaktomas/vface/internal/encoder"
	"github.com/kozaktomas/vface/internal/facematch"
	"github.com/kozaktomas/vface/internal/gallery"
	"github.com/kozaktomas/vface/internal/metrics"
)

const auditTimeout = 5 * time.Second

// Authenticator resolves a client credential to its tenant.
type Authenticator interface {
	Authenticate(ctx context.Context, clientID, secret string) (database.TenantID, error)
}

// Galleries caches the identities of (tenant, group) pairs.
type Galleries interface {
	Resolve(ctx context.Context, tenant database.TenantID, groupID string, load gallery.Loader) (*gallery.Entry, error)
	Invalidate(tenant database.TenantID, groupID string) error
}

// Encoder returns one feature vector per face found in an image.
type Encoder interface {
	Encode(ctx context.Context, image []byte) ([][]float64, error)
}

// Dispatcher serves register, recognize and clear requests.
type Dispatcher struct {
	auth      Authenticator
	galleries Galleries
	store     database.IdentityStore
	encoder   Encoder
	audit     database.AuditLog

	logger               *slog.Logger
	metrics              *metrics.Metrics
	invalidateOnRegister bool
	now                  func() time.Time
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithInvalidateOnRegister drops the cached gallery of a group after every
// successful register. By default a cached gallery keeps serving until it
// expires or is cleared, so new identities may not be matched right away.
func WithInvalidateOnRegister(enabled bool) Option {
	return func(d *Dispatcher) {
		d.invalidateOnRegister = enabled
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// New creates a Dispatcher. audit receives one entry per handled request.
func New(authenticator Authenticator, galleries Galleries, store database.IdentityStore, enc Encoder, audit database.AuditLog, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		auth:      authenticator,
		galleries: galleries,
		store:     store,
		encoder:   enc,
		audit:     audit,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle serves one request. It never returns nil and never panics on bad
// input; failures are reported through the response status code.
func (d *Dispatcher) Handle(ctx context.Context, op Operation, body []byte) *Response {
	start := d.now()
	log := d.logger.With("request_id", uuid.NewString(), "operation", op)

	tenant, resp := d.serve(ctx, log, op, body)
	d.finish(ctx, log, op, tenant, body, resp, start)
	return resp
}

// Reject answers a request that is refused before its body reaches Handle:
// the body could not be read, or cause wraps ErrServerBusy. The rejection is
// audited like any other failure.
func (d *Dispatcher) Reject(ctx context.Context, op Operation, cause error) *Response {
	start := d.now()
	log := d.logger.With("request_id", uuid.NewString(), "operation", op)

	e := &Error{Kind: KindRequestShape, Msg: "The request body could not be read.", Err: cause}
	if errors.Is(cause, ErrServerBusy) {
		e = newError(KindServerBusy, cause)
	}
	resp := d.fail(log, e)
	d.finish(ctx, log, op, database.NoTenant, nil, resp, start)
	return resp
}

func (d *Dispatcher) finish(ctx context.Context, log *slog.Logger, op Operation, tenant database.TenantID, body []byte, resp *Response, start time.Time) {
	d.metrics.ObserveRequest(string(op), resp.StatusCode, start)
	d.record(ctx, log, database.AuditEntry{
		TenantID:  tenant,
		Operation: string(op),
		Status:    resp.StatusCode,
		Request:   redactRequest(body),
		Response:  serializeResponse(resp),
		At:        d.now(),
	})
}

func (d *Dispatcher) serve(ctx context.Context, log *slog.Logger, op Operation, body []byte) (database.TenantID, *Response) {
	cred, data, err := ParseEnvelope(body)
	if err != nil {
		return database.NoTenant, d.fail(log, err)
	}

	tenant, err := d.auth.Authenticate(ctx, cred.Client, cred.Key)
	if err != nil {
		return database.NoTenant, d.fail(log.With("client", cred.Client), err)
	}
	log = log.With("tenant", tenant)

	req, err := DecodeRequest(op, data)
	if err != nil {
		return tenant, d.fail(log, err)
	}

	// Once dispatched a request runs to completion even if the caller leaves.
	ctx = context.WithoutCancel(ctx)

	var resp *Response
	switch r := req.(type) {
	case *RegisterRequest:
		resp, err = d.register(ctx, log, tenant, r)
	case *RecognizeRequest:
		resp, err = d.recognize(ctx, log, tenant, r)
	case *ClearRequest:
		resp, err = d.clear(log, tenant, r)
	default:
		err = fmt.Errorf("unhandled request type %T", req)
	}
	if err != nil {
		return tenant, d.fail(log, err)
	}
	log.Debug("request completed", "status", resp.StatusCode)
	return tenant, resp
}

func (d *Dispatcher) register(ctx context.Context, log *slog.Logger, tenant database.TenantID, r *RegisterRequest) (*Response, error) {
	vectors, err := d.encode(ctx, r.Image)
	if err != nil {
		return nil, err
	}

	// Only the first detected face is registered.
	status, err := d.store.Upsert(ctx, tenant, string(r.GroupID), string(r.IdentityID), vectors[0], r.Info)
	if err != nil {
		return nil, newError(KindStoreWriteFailed, err)
	}
	log.Info("identity registered", "group", r.GroupID, "uid", r.IdentityID, "status", status)

	if d.invalidateOnRegister {
		if err := d.galleries.Invalidate(tenant, string(r.GroupID)); err == nil {
			log.Debug("cached gallery invalidated", "group", r.GroupID)
		}
	}
	return okResponse(string(status), nil), nil
}

func (d *Dispatcher) recognize(ctx context.Context, log *slog.Logger, tenant database.TenantID, r *RecognizeRequest) (*Response, error) {
	img, err := encoder.DecodeBase64Image(r.Image)
	if err != nil {
		return nil, &Error{Kind: KindRequestShape, Msg: "The image is not valid base64.", Err: err}
	}

	entry, err := d.galleries.Resolve(ctx, tenant, string(r.GroupID), d.store.Fetch)
	switch {
	case errors.Is(err, gallery.ErrNoSuchGallery):
		return nil, &Error{
			Kind: KindNoSuchGallery,
			Msg:  fmt.Sprintf("There are no registered faces in group %s.", r.GroupID),
			Err:  err,
		}
	case err != nil:
		return nil, &Error{
			Kind: KindStoreUnavailable,
			Msg:  "Unable to connect to the database when obtaining face information.",
			Err:  err,
		}
	}

	vectors, err := d.encodeBytes(ctx, img)
	if err != nil {
		return nil, err
	}

	candidates, err := facematch.Match(entry.Identities, vectors, *r.Threshold)
	if err != nil {
		return nil, err
	}
	log.Info("faces recognized", "group", r.GroupID, "faces", len(vectors), "matched", len(candidates))

	return okResponse("Ok", RecognizeResult{
		Info: GroupInfo{GroupID: r.GroupID, TenantID: tenant},
		Data: candidates,
	}), nil
}

func (d *Dispatcher) clear(log *slog.Logger, tenant database.TenantID, r *ClearRequest) (*Response, error) {
	if err := d.galleries.Invalidate(tenant, string(r.GroupID)); err != nil {
		return nil, err
	}
	log.Info("gallery cache cleared", "group", r.GroupID)
	return okResponse("Ok", fmt.Sprintf("Successfully cleared cache associated with group %s.", r.GroupID)), nil
}

func (d *Dispatcher) encode(ctx context.Context, b64 string) ([][]float64, error) {
	img, err := encoder.DecodeBase64Image(b64)
	if err != nil {
		return nil, &Error{Kind: KindRequestShape, Msg: "The image is not valid base64.", Err: err}
	}
	return d.encodeBytes(ctx, img)
}

func (d *Dispatcher) encodeBytes(ctx context.Context, img []byte) ([][]float64, error) {
	vectors, err := d.encoder.Encode(ctx, img)
	switch {
	case errors.Is(err, encoder.ErrNoFace):
		return nil, newError(KindEncodingFailed, err)
	case err != nil:
		return nil, newError(KindEncoderUnavailable, err)
	case len(vectors) == 0:
		return nil, newError(KindEncodingFailed, encoder.ErrNoFace)
	}
	return vectors, nil
}

func (d *Dispatcher) fail(log *slog.Logger, err error) *Response {
	de := classify(err)
	resp := errorResponse(de)
	if resp.StatusCode >= 500 {
		log.Error("request failed", "kind", de.Kind, "status", resp.StatusCode, "error", err)
	} else {
		log.Warn("request rejected", "kind", de.Kind, "status", resp.StatusCode, "error", err)
	}
	return resp
}

// record writes the audit entry. Audit failures are logged and never change
// the response.
func (d *Dispatcher) record(ctx context.Context, log *slog.Logger, entry database.AuditEntry) {
	if d.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := d.audit.Record(ctx, entry); err != nil {
		log.Error("audit record failed", "error", err)
	}
}
