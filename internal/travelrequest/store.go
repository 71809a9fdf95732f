package travelrequest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/frahmantamala/travel-requests/internal"
	"github.com/frahmantamala/travel-requests/internal/core/events"
	"github.com/frahmantamala/travel-requests/internal/datefmt"
)

const (
	MsgFetchFailed  = "Não foi possível carregar os pedidos de viagem."
	MsgCreateFailed = "Não foi possível criar o pedido."
	MsgUpdateFailed = "Não foi possível atualizar o status."
)

type API interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Patch(ctx context.Context, path string, body, out any) error
}

type Store struct {
	api    API
	bus    events.Publisher
	logger *slog.Logger

	mu         sync.Mutex
	items      []TravelRequest
	loading    bool
	err        string
	filters    Filters
	pagination Pagination
}

func NewStore(api API, bus events.Publisher, logger *slog.Logger) *Store {
	return &Store{
		api:        api,
		bus:        bus,
		logger:     logger,
		items:      []TravelRequest{},
		filters:    DefaultFilters(),
		pagination: DefaultPagination(),
	}
}

type listMeta struct {
	CurrentPage any `json:"current_page"`
	LastPage    any `json:"last_page"`
	PerPage     any `json:"per_page"`
	Total       any `json:"total"`
}

// Fetch loads the current page with the current filters. Failures end up in
// Error rather than being returned.
func (s *Store) Fetch(ctx context.Context) {
	s.mu.Lock()
	s.loading = true
	s.err = ""
	filters := s.filters
	requested := s.pagination
	s.mu.Unlock()
	s.notify(ctx, "loading")

	var resp struct {
		Data json.RawMessage `json:"data"`
		Meta *listMeta       `json:"meta"`
	}
	err := s.api.Get(ctx, "/travel-requests", listQuery(filters, requested), &resp)

	s.mu.Lock()
	s.loading = false
	if err != nil {
		s.err = joinMessages(internal.MessagesFrom(err, MsgFetchFailed))
		s.mu.Unlock()
		s.logger.Warn("failed to load travel requests", "error", err, "status", internal.StatusOf(err))
		s.notify(ctx, "error")
		return
	}

	items := s.decodeList(resp.Data)
	s.items = items
	s.pagination = paginationFrom(resp.Meta, requested, len(items))
	s.mu.Unlock()

	s.logger.Debug("travel requests loaded", "count", len(items), "page", requested.CurrentPage)
	s.notify(ctx, "loaded")
}

func listQuery(filters Filters, page Pagination) url.Values {
	params := url.Values{}
	if filters.Status != "" && filters.Status != StatusAll {
		params.Set("status", filters.Status)
	}
	if location := strings.TrimSpace(filters.Location); location != "" {
		params.Set("location", location)
	}
	for name, value := range map[string]string{
		"departure_from": filters.DepartureFrom,
		"departure_to":   filters.DepartureTo,
		"return_from":    filters.ReturnFrom,
		"return_to":      filters.ReturnTo,
	} {
		if date := datefmt.ToAPIDate(value); date != "" {
			params.Set(name, date)
		}
	}
	params.Set("page", strconv.Itoa(page.CurrentPage))
	params.Set("per_page", strconv.Itoa(page.PerPage))
	return params
}

func (s *Store) decodeList(raw json.RawMessage) []TravelRequest {
	var list []payload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &list); err != nil {
			s.logger.Warn("unexpected travel request list payload", "error", err)
		}
	}

	items := make([]TravelRequest, 0, len(list))
	for _, p := range list {
		items = append(items, p.normalize())
	}
	return items
}

func paginationFrom(meta *listMeta, requested Pagination, count int) Pagination {
	if meta == nil {
		meta = &listMeta{}
	}

	out := requested
	if v, ok := intFrom(meta.CurrentPage); ok {
		out.CurrentPage = v
	}
	if v, ok := intFrom(meta.PerPage); ok && v > 0 {
		out.PerPage = v
	}
	out.Total = count
	if v, ok := intFrom(meta.Total); ok {
		out.Total = v
	}
	if v, ok := intFrom(meta.LastPage); ok {
		out.LastPage = v
	} else {
		out.LastPage = (out.Total + out.PerPage - 1) / out.PerPage
	}
	if out.LastPage < 1 {
		out.LastPage = 1
	}
	return out
}

func intFrom(v any) (int, bool) {
	id := coerceID(v)
	if id == nil {
		return 0, false
	}
	return int(*id), true
}

// Create posts a new request and prepends it to the list. On failure the
// returned *internal.APIError carries every extracted message in Messages.
func (s *Store) Create(ctx context.Context, in CreateInput) (*TravelRequest, error) {
	s.mu.Lock()
	s.loading = true
	s.err = ""
	s.mu.Unlock()

	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	err := s.api.Post(ctx, "/travel-requests", in.normalize(), &resp)

	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()

	if err != nil {
		return nil, s.fail(ctx, err, MsgCreateFailed)
	}

	created, err := Normalize(resp.Data)
	if err != nil {
		return nil, s.fail(ctx, internal.NewTransportError(fmt.Errorf("decode created travel request: %w", err)), MsgCreateFailed)
	}

	s.mu.Lock()
	s.items = append([]TravelRequest{created}, s.items...)
	s.pagination.Total++
	s.mu.Unlock()

	s.logger.Info("travel request created", "id", created.ID, "requester", created.RequesterName)
	s.notify(ctx, "created")
	return &created, nil
}

// UpdateStatus patches the status of id and swaps in the server's copy.
func (s *Store) UpdateStatus(ctx context.Context, id int64, status Status) (*TravelRequest, error) {
	s.mu.Lock()
	s.err = ""
	s.mu.Unlock()

	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	path := fmt.Sprintf("/travel-requests/%d/status", id)
	if err := s.api.Patch(ctx, path, map[string]Status{"status": status}, &resp); err != nil {
		return nil, s.fail(ctx, err, MsgUpdateFailed)
	}

	updated, err := Normalize(resp.Data)
	if err != nil {
		return nil, s.fail(ctx, internal.NewTransportError(fmt.Errorf("decode updated travel request: %w", err)), MsgUpdateFailed)
	}

	s.mu.Lock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i] = updated
		}
	}
	s.mu.Unlock()

	s.logger.Info("travel request status updated", "id", id, "status", updated.Status)
	s.notify(ctx, "updated")
	return &updated, nil
}

// fail records the messages of err in Error and attaches them to the error.
func (s *Store) fail(ctx context.Context, err error, fallback string) error {
	messages := internal.MessagesFrom(err, fallback)

	s.mu.Lock()
	s.err = joinMessages(messages)
	s.mu.Unlock()
	s.notify(ctx, "error")

	if apiErr, ok := internal.AsAPIError(err); ok {
		return apiErr.WithMessages(messages)
	}
	return err
}

// GoToPage clamps page to the known range and refetches when it changes.
func (s *Store) GoToPage(ctx context.Context, page int) {
	s.mu.Lock()
	target := page
	if target > s.pagination.LastPage {
		target = s.pagination.LastPage
	}
	if target < 1 {
		target = 1
	}
	if target == s.pagination.CurrentPage {
		s.mu.Unlock()
		return
	}
	s.pagination.CurrentPage = target
	s.mu.Unlock()

	s.Fetch(ctx)
}

func (s *Store) SetPerPage(ctx context.Context, perPage int) {
	if perPage < 1 {
		perPage = 1
	}

	s.mu.Lock()
	s.pagination.PerPage = perPage
	s.pagination.CurrentPage = 1
	s.mu.Unlock()

	s.Fetch(ctx)
}

// SetPage sets the page to request on the next Fetch without clamping, for
// callers that know the page before any list was loaded.
func (s *Store) SetPage(page int) {
	if page < 1 {
		page = 1
	}
	s.mu.Lock()
	s.pagination.CurrentPage = page
	s.mu.Unlock()
}

func (s *Store) ResetFilters() {
	s.SetFilters(DefaultFilters())
}

func (s *Store) SetFilters(filters Filters) {
	if filters.Status == "" {
		filters.Status = StatusAll
	}
	s.mu.Lock()
	s.filters = filters
	s.mu.Unlock()
	s.notify(context.Background(), "filters")
}

func (s *Store) Filters() Filters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters
}

func (s *Store) Items() []TravelRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TravelRequest(nil), s.items...)
}

// Filtered returns the loaded items that match the current filters.
func (s *Store) Filtered() []TravelRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TravelRequest, 0, len(s.items))
	for _, item := range s.items {
		if s.filters.Matches(item) {
			out = append(out, item)
		}
	}
	return out
}

func (s *Store) ErrorMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Store) Pagination() Pagination {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pagination
}

func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Store) notify(ctx context.Context, change string) {
	events.Notify(ctx, s.bus, s.logger, events.TravelRequestsChanged, map[string]interface{}{"change": change})
}

func joinMessages(messages []string) string {
	return strings.Join(messages, " ")
}
