package api

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"strconv"
	"strings"

	"zwop/internal/flow"
	"zwop/internal/ports"
	"zwop/internal/pub"
	"zwop/internal/types"
	"zwop/internal/zulip"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
)

const (
	maxBodyBytes   = 1 << 20
	maxUploadBytes = 25 << 20
)

// Version is reported by /api/health. Set at build time with -ldflags.
var Version = "dev"

type Handler struct {
	Resolver   *flow.Resolver
	Repo       ports.ClientRepository
	Messengers ports.MessengerFactory
	Limiter    ports.RateLimiter
	ClientRPM  int
	Pub        ports.Publisher
	AuditARN   string
}

func NewHandler(cfg ServerConfig,
	repo ports.ClientRepository,
	limiter ports.RateLimiter,
	messengers ports.MessengerFactory,
	publisher ports.Publisher,
) *Handler {
	return &Handler{
		Resolver:   flow.NewResolver(repo, cfg.CacheTTL),
		Repo:       repo,
		Messengers: messengers,
		Limiter:    limiter,
		ClientRPM:  cfg.ClientRPM,
		Pub:        publisher,
		AuditARN:   cfg.AuditARN,
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/send_message", h.handleSendMessage)
	mux.HandleFunc("PATCH /api/update_message", h.handleUpdateMessage)
	mux.HandleFunc("POST /api/upload_file", h.handleUploadFile)
	mux.HandleFunc("GET /api/get_stream_topics", h.handleGetStreamTopics)
	mux.HandleFunc("GET /api/me", h.handleMe)
	mux.HandleFunc("GET /api/admin/clients", h.handleListClients)
	mux.HandleFunc("POST /api/admin/clients", h.handleRegisterClient)
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		_ = writeJSON(w, http.StatusOK, map[string]any{"status": "OK", "version": Version})
	})
	return mux
}

// authenticate resolves the X-API-key header and charges the client's request budget.
func (h *Handler) authenticate(r *http.Request) (types.Client, error) {
	ctx := r.Context()
	c, err := h.Resolver.Resolve(ctx, r.Header.Get(types.APIKeyHdrName))
	if err != nil {
		if errors.Is(err, types.ErrNotFound) || errors.Is(err, flow.ErrMissingKey) {
			log.WithFields(log.Fields{"ip": clientIP(r), "path": r.URL.Path}).Info("rejected unauthenticated request")
		}
		return nil, err
	}
	if err := flow.Throttle(ctx, h.Limiter, c, h.ClientRPM); err != nil {
		return nil, err
	}
	return c, nil
}

// scoped authenticates a scoped client and returns the messenger it acts through.
// On failure the response has already been written.
func (h *Handler) scoped(w http.ResponseWriter, r *http.Request) (types.ScopedClient, ports.Messenger, bool) {
	c, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return types.ScopedClient{}, nil, false
	}
	sc, err := flow.RequireScoped(c)
	if err != nil {
		writeError(w, err)
		return types.ScopedClient{}, nil, false
	}
	m, err := h.Messengers.For(sc)
	if err != nil {
		writeError(w, err)
		return types.ScopedClient{}, nil, false
	}
	return sc, m, true
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	sc, m, ok := h.scoped(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		writeDetail(w, http.StatusBadRequest, "topic is required")
		return
	}

	var (
		content string
		image   multipart.File
		imgName string
	)
	if isMultipart(r) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			writeDetail(w, http.StatusBadRequest, "invalid multipart body")
			return
		}
		content = r.FormValue("content")
		f, hdr, err := r.FormFile("image")
		switch {
		case err == nil:
			defer f.Close()
			image, imgName = f, hdr.Filename
		case !errors.Is(err, http.ErrMissingFile):
			writeDetail(w, http.StatusBadRequest, "invalid image")
			return
		}
	} else {
		var err error
		if content, err = readContent(r); err != nil {
			writeDetail(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if strings.TrimSpace(content) == "" {
		writeDetail(w, http.StatusBadRequest, "content is required")
		return
	}

	if image != nil {
		up, err := m.UploadFile(ctx, imgName, image)
		if err != nil {
			writeError(w, err)
			return
		}
		content = flow.AppendAttachment(content, up.URI)
	}

	res, err := m.SendMessage(ctx, sc.Stream, topic, content)
	if err != nil {
		writeError(w, err)
		return
	}
	ev := scopedEvent(pub.EventMessageSent, sc)
	ev.Topic, ev.MessageID = topic, res.ID
	h.audit(ctx, ev)
	_ = writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleUpdateMessage(w http.ResponseWriter, r *http.Request) {
	sc, m, ok := h.scoped(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	q := r.URL.Query()
	id, err := strconv.ParseInt(q.Get("message_id"), 10, 64)
	if err != nil || id <= 0 {
		writeDetail(w, http.StatusBadRequest, "message_id must be a positive integer")
		return
	}
	mode, err := types.ParsePropagateMode(q.Get("propagate_mode"))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	topic := q.Get("topic")
	content, err := readContent(r)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := flow.CheckUpdate(content, topic); err != nil {
		writeError(w, err)
		return
	}

	res, err := m.UpdateMessage(ctx, id, topic, content, mode)
	if err != nil {
		writeError(w, err)
		return
	}
	ev := scopedEvent(pub.EventMessageUpdated, sc)
	ev.Topic, ev.MessageID = topic, id
	h.audit(ctx, ev)
	_ = writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	sc, m, ok := h.scoped(w, r)
	if !ok {
		return
	}
	if !isMultipart(r) {
		writeDetail(w, http.StatusBadRequest, "multipart body with a file field is required")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "file is required")
		return
	}
	defer f.Close()

	res, err := m.UploadFile(r.Context(), hdr.Filename, f)
	if err != nil {
		writeError(w, err)
		return
	}
	h.audit(r.Context(), scopedEvent(pub.EventFileUploaded, sc))
	_ = writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleGetStreamTopics(w http.ResponseWriter, r *http.Request) {
	sc, m, ok := h.scoped(w, r)
	if !ok {
		return
	}
	topics, err := m.GetStreamTopics(r.Context(), sc.Stream)
	if err != nil {
		writeError(w, err)
		return
	}
	if topics == nil {
		topics = []types.Topic{}
	}
	_ = writeJSON(w, http.StatusOK, map[string]any{"result": "success", "msg": "", "topics": topics})
}

// meView is a client as shown to itself: no key, no bot secret.
type meView struct {
	Kind       types.Kind `json:"kind"`
	Stream     string     `json:"stream,omitempty"`
	ProposalNo *int       `json:"proposal_no,omitempty"`
	Bot        *botView   `json:"bot,omitempty"`
	Admin      *bool      `json:"admin,omitempty"`
}

type botView struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
	Site  string `json:"site"`
	ID    int    `json:"id,omitempty"`
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	c, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rec := types.ToRecord(c)
	v := meView{Kind: rec.Kind, Stream: rec.Stream, ProposalNo: rec.ProposalNo, Admin: rec.Admin}
	if rec.Bot != nil {
		v.Bot = &botView{Name: rec.Bot.Name, Email: rec.Bot.Email, Site: rec.Bot.Site, ID: rec.Bot.ID}
	}
	_ = writeJSON(w, http.StatusOK, v)
}

func (h *Handler) admin(w http.ResponseWriter, r *http.Request) bool {
	c, err := h.authenticate(r)
	if err == nil {
		_, err = flow.RequireAdmin(c)
	}
	if err != nil {
		writeError(w, err)
		return false
	}
	return true
}

func (h *Handler) handleListClients(w http.ResponseWriter, r *http.Request) {
	if !h.admin(w, r) {
		return
	}
	clients, err := h.Repo.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := flow.FilterClients(r.URL.Query().Get("query"), clients)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	_ = writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleRegisterClient(w http.ResponseWriter, r *http.Request) {
	if !h.admin(w, r) {
		return
	}
	ctx := r.Context()
	var req flow.RegisterRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid json")
		return
	}

	c, err := flow.Register(ctx, h.Repo, req)
	if err != nil {
		writeError(w, err)
		return
	}
	log.WithFields(log.Fields{"kind": c.Kind(), "client": flow.ComputeKey(c.ClientKey())}).Info("client registered")
	ev := pub.NewEvent(pub.EventClientRegistered)
	ev.ClientKind = string(c.Kind())
	if sc, ok := c.(types.ScopedClient); ok {
		ev.Stream, ev.ProposalNo = sc.Stream, sc.ProposalNo
	}
	h.audit(ctx, ev)
	_ = writeJSON(w, http.StatusCreated, types.ToRecord(c).Redacted())
}

// audit publishes ev when an audit topic is configured. Failures are logged only.
func (h *Handler) audit(ctx context.Context, ev pub.Event) {
	if h.Pub == nil || h.AuditARN == "" {
		return
	}
	b, err := ev.Encode()
	if err == nil {
		err = h.Pub.PublishRaw(ctx, h.AuditARN, b)
	}
	if err != nil {
		log.WithError(err).WithField("event", ev.Type).Warn("failed to publish audit event")
	}
}

func scopedEvent(typ string, sc types.ScopedClient) pub.Event {
	ev := pub.NewEvent(typ)
	ev.ClientKind = string(types.KindScoped)
	ev.Stream, ev.ProposalNo = sc.Stream, sc.ProposalNo
	return ev
}

// readContent reads a message body sent as text/plain or as a JSON string.
func readContent(r *http.Request) (string, error) {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return "", errors.New("read error")
	}
	defer func() {
		_ = r.Body.Close()
	}()
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "application/json" && len(b) > 0 {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", errors.New("json body must be a string")
		}
		return s, nil
	}
	return string(b), nil
}

func isMultipart(r *http.Request) bool {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mt == "multipart/form-data"
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var apiErr *zulip.APIError
	switch {
	case errors.Is(err, flow.ErrMissingKey):
		writeDetail(w, http.StatusForbidden, "Not authenticated")
	case errors.Is(err, types.ErrNotFound):
		w.Header().Set("HX-Location", "/")
		writeDetail(w, http.StatusUnauthorized, "Unauthorised")
	case errors.Is(err, flow.ErrForbidden):
		writeDetail(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, flow.ErrRateLimited):
		writeDetail(w, http.StatusTooManyRequests, "Too many requests")
	case errors.Is(err, types.ErrDuplicateKey):
		writeDetail(w, http.StatusConflict, "a client with this key already exists")
	case errors.Is(err, types.ErrInvalidClient), errors.Is(err, flow.ErrEmptyUpdate):
		writeDetail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, zulip.ErrNoBot):
		log.WithError(err).Error("no bot for client")
		writeDetail(w, http.StatusInternalServerError, "no bot configured for this client")
	case errors.As(err, &apiErr):
		code := apiErr.Status
		if code < 400 || code >= 500 {
			code = http.StatusBadGateway
		}
		_ = writeJSON(w, code, map[string]any{"result": "error", "msg": apiErr.Msg, "code": apiErr.Code})
	default:
		log.WithError(err).Error("request failed")
		writeDetail(w, http.StatusInternalServerError, "internal error")
	}
}

func writeDetail(w http.ResponseWriter, code int, detail string) {
	_ = writeJSON(w, code, map[string]any{"detail": detail})
}

// clientIP extracts the real client IP from X-Forwarded-For or RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}
