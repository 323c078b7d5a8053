package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/moiseenkov/cinema/internal/config"
	"github.com/moiseenkov/cinema/internal/queue"
	"github.com/moiseenkov/cinema/internal/repository"
	"github.com/moiseenkov/cinema/internal/service"
)

type api struct {
	t     *testing.T
	e     *echo.Echo
	queue *queue.LocalQueue
}

func newAPI(t *testing.T) *api {
	t.Helper()
	cfg := config.Config{
		JWTSecret:      "router-test",
		AccessTTLMin:   5,
		RefreshTTLDays: 1,
		BcryptCost:     bcrypt.MinCost,
		PageSize:       10,
	}
	store := repository.NewMemoryStore()
	users := service.NewUserService(store.Users(), store.Tokens(), cfg)
	inventory := service.NewInventoryService(store.Halls(), store.Movies())
	showings, err := service.NewShowingService(store.Showings(), store.Halls(), store.Movies(), config.DefaultBooking())
	require.NoError(t, err)
	tickets := service.NewTicketService(store.Tickets(), store.Showings(), store.Halls(), store.Users(), time.Now)

	var payments *service.PaymentService
	local := queue.NewLocalQueue(func(ctx context.Context, job queue.PaymentRequested) error {
		return payments.ProcessPayment(ctx, job)
	}, 2, 8)
	payments = service.NewPaymentService(tickets, store.Tickets(), local, time.Millisecond, 2*time.Hour, time.Now)
	local.Start(context.Background())
	t.Cleanup(func() { _ = local.Close() })

	_, err = users.EnsureAdmin(context.Background(), "admin@example.com", "admin-pass")
	require.NoError(t, err)

	e := New(Deps{
		Config:    cfg,
		Users:     users,
		Inventory: inventory,
		Showings:  showings,
		Tickets:   tickets,
		Payments:  payments,
	})
	return &api{t: t, e: e, queue: local}
}

func (a *api) do(method, path, token string, body any) (int, map[string]any) {
	a.t.Helper()
	var payload string
	if body != nil {
		bs, err := json.Marshal(body)
		require.NoError(a.t, err)
		payload = string(bs)
	}
	req := httptest.NewRequest(method, path, strings.NewReader(payload))
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func (a *api) login(email, password string) string {
	a.t.Helper()
	code, body := a.do(http.MethodPost, "/token/", "", map[string]string{"email": email, "password": password})
	require.Equal(a.t, http.StatusOK, code, body)
	return body["access"].(string)
}

func (a *api) signUp(email string) string {
	a.t.Helper()
	code, body := a.do(http.MethodPost, "/users/", "", map[string]string{"email": email, "password": "pw-" + email})
	require.Equal(a.t, http.StatusCreated, code, body)
	return a.login(email, "pw-"+email)
}

func id(body map[string]any) string {
	return fmt.Sprint(int(body["id"].(float64)))
}

// tomorrowAt returns an RFC3339 UTC time tomorrow at hh:mm.
func tomorrowAt(hh, mm int) string {
	d := time.Now().UTC().AddDate(0, 0, 1)
	return time.Date(d.Year(), d.Month(), d.Day(), hh, mm, 0, 0, time.UTC).Format(time.RFC3339)
}

func TestBookingAndPaymentFlow(t *testing.T) {
	a := newAPI(t)
	admin := a.login("admin@example.com", "admin-pass")
	alice := a.signUp("alice@example.com")
	bob := a.signUp("bob@example.com")

	code, hall := a.do(http.MethodPost, "/halls/", admin, map[string]any{"name": "Red", "row_count": 16, "row_size": 20})
	require.Equal(t, http.StatusCreated, code, hall)
	code, movie := a.do(http.MethodPost, "/movies/", admin, map[string]any{"title": "Alien", "duration_minutes": 117, "premiere_year": 1979})
	require.Equal(t, http.StatusCreated, code, movie)
	code, showing := a.do(http.MethodPost, "/showings/", admin, map[string]any{
		"hall": hall["id"], "movie": movie["id"], "start_time": tomorrowAt(18, 0), "price": "9.99",
	})
	require.Equal(t, http.StatusCreated, code, showing)
	assert.Equal(t, "9.99", showing["price"])

	code, clash := a.do(http.MethodPost, "/showings/", admin, map[string]any{
		"hall": hall["id"], "movie": movie["id"], "start_time": tomorrowAt(19, 0), "price": "5",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, fmt.Sprint(clash["start_time"]), "Hall is busy by showing "+id(showing))

	seat := map[string]any{"showing": showing["id"], "row_number": 5, "seat_number": 7, "receipt": "forged", "created_at": "2000-01-01T00:00:00Z"}
	code, ticket := a.do(http.MethodPost, "/tickets/", alice, seat)
	require.Equal(t, http.StatusCreated, code, ticket)
	assert.Equal(t, "", ticket["receipt"])
	assert.Equal(t, false, ticket["paid"])
	assert.Equal(t, "9.99", ticket["price"])
	assert.NotEqual(t, "2000-01-01T00:00:00Z", ticket["created_at"])

	code, dup := a.do(http.MethodPost, "/tickets/", bob, seat)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, []any{"Seat is already booked for this showing"}, dup["non_field_errors"])

	code, _ = a.do(http.MethodGet, "/tickets/"+id(ticket)+"/", bob, nil)
	assert.Equal(t, http.StatusNotFound, code, "other holders cannot see the ticket")
	code, page := a.do(http.MethodGet, "/tickets/", bob, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, page["count"])
	code, page = a.do(http.MethodGet, "/tickets/", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, page["count"])

	code, paying := a.do(http.MethodPut, "/tickets/"+id(ticket)+"/pay/", alice, nil)
	require.Equal(t, http.StatusOK, code, paying)
	assert.Equal(t, false, paying["paid"])
	token, _ := paying["payment_token"].(string)
	require.NotEmpty(t, token)

	require.Eventually(t, func() bool {
		_, got := a.do(http.MethodGet, "/tickets/"+id(ticket)+"/", alice, nil)
		return got["receipt"] == token
	}, 2*time.Second, 5*time.Millisecond)

	code, again := a.do(http.MethodPatch, "/tickets/"+id(ticket)+"/pay/", alice, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Ticket "+id(ticket)+" is paid already", again["detail"])

	code, moved := a.do(http.MethodPatch, "/tickets/"+id(ticket)+"/", alice, map[string]any{"row_number": 1})
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 5, moved["row_number"], "paid tickets are frozen")

	code, locked := a.do(http.MethodDelete, "/tickets/"+id(ticket)+"/", alice, nil)
	assert.Equal(t, http.StatusLocked, code)
	assert.Equal(t, "Paid ticket cannot be removed", locked["detail"])

	code, _ = a.do(http.MethodDelete, "/showings/"+id(showing)+"/", admin, nil)
	assert.Equal(t, http.StatusLocked, code)
}

func TestAccessPolicy(t *testing.T) {
	a := newAPI(t)
	alice := a.signUp("alice@example.com")

	tests := []struct {
		method, path, token string
		want                int
	}{
		{http.MethodGet, "/halls/", "", http.StatusOK},
		{http.MethodPost, "/halls/", "", http.StatusUnauthorized},
		{http.MethodPost, "/halls/", alice, http.StatusForbidden},
		{http.MethodGet, "/tickets/", "", http.StatusUnauthorized},
		{http.MethodGet, "/tickets/", alice, http.StatusOK},
		{http.MethodGet, "/users/", "", http.StatusOK},
		{http.MethodGet, "/users/1/", "", http.StatusUnauthorized},
		{http.MethodGet, "/halls/", "garbage", http.StatusUnauthorized},
		{http.MethodGet, "/token/", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/tickets/1/pay/", alice, http.StatusMethodNotAllowed},
		{http.MethodGet, "/halls/abc/", "", http.StatusNotFound},
		{http.MethodGet, "/nowhere/", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			code, body := a.do(tt.method, tt.path, tt.token, nil)
			assert.Equal(t, tt.want, code, body)
			if code >= 400 {
				assert.Contains(t, body, "detail")
			}
		})
	}
}

func TestUsersScope(t *testing.T) {
	a := newAPI(t)
	admin := a.login("admin@example.com", "admin-pass")
	alice := a.signUp("alice@example.com")
	a.signUp("bob@example.com")

	_, anon := a.do(http.MethodGet, "/users/", "", nil)
	assert.EqualValues(t, 0, anon["count"])
	_, mine := a.do(http.MethodGet, "/users/", alice, nil)
	assert.EqualValues(t, 1, mine["count"])
	_, all := a.do(http.MethodGet, "/users/", admin, nil)
	assert.EqualValues(t, 3, all["count"])

	code, body := a.do(http.MethodPost, "/users/", "", map[string]string{"email": "alice@example.com", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, []any{"user with this email address already exists."}, body["email"])
}

func TestTokenEndpoints(t *testing.T) {
	a := newAPI(t)

	code, body := a.do(http.MethodPost, "/token/", "", map[string]string{"email": "admin@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Contains(t, body["detail"], "No active account")

	code, body = a.do(http.MethodPost, "/token/", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body, "email")
	assert.Contains(t, body, "password")

	code, pair := a.do(http.MethodPost, "/token/", "", map[string]string{"email": "admin@example.com", "password": "admin-pass"})
	require.Equal(t, http.StatusOK, code)
	code, refreshed := a.do(http.MethodPost, "/token/refresh/", "", map[string]any{"refresh": pair["refresh"]})
	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, refreshed["access"])

	code, _ = a.do(http.MethodPost, "/token/refresh/", "", map[string]any{"refresh": "bogus"})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestTrailingSlashAndRoot(t *testing.T) {
	a := newAPI(t)

	code, _ := a.do(http.MethodGet, "/halls", "", nil)
	assert.Equal(t, http.StatusOK, code)

	code, root := a.do(http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "http://example.com/halls/", root["halls"])

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMalformedBody(t *testing.T) {
	a := newAPI(t)
	admin := a.login("admin@example.com", "admin-pass")

	code, body := a.do(http.MethodPost, "/halls/", admin, map[string]any{"name": "Red", "row_count": "many", "row_size": 3})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, []any{"A valid integer is required."}, body["row_count"])

	req := httptest.NewRequest(http.MethodPost, "/halls/", strings.NewReader("{"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+admin)
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHallSeatCount(t *testing.T) {
	a := newAPI(t)
	admin := a.login("admin@example.com", "admin-pass")

	code, hall := a.do(http.MethodPost, "/halls/", admin, map[string]any{"name": "Red", "row_count": 16, "row_size": 20})
	require.Equal(t, http.StatusCreated, code, hall)
	assert.EqualValues(t, 320, hall["seat_count"])

	code, got := a.do(http.MethodGet, "/halls/"+id(hall)+"/", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 320, got["seat_count"])

	code, got = a.do(http.MethodPatch, "/halls/"+id(hall)+"/", admin, map[string]any{"row_size": 10})
	require.Equal(t, http.StatusOK, code, got)
	assert.EqualValues(t, 160, got["seat_count"])

	code, page := a.do(http.MethodGet, "/halls/", "", nil)
	require.Equal(t, http.StatusOK, code)
	results := page["results"].([]any)
	require.Len(t, results, 1)
	assert.EqualValues(t, 160, results[0].(map[string]any)["seat_count"])
}

func TestOversizedMovieDurationRejected(t *testing.T) {
	a := newAPI(t)
	admin := a.login("admin@example.com", "admin-pass")

	code, body := a.do(http.MethodPost, "/movies/", admin, map[string]any{"title": "Endless", "duration_minutes": 200000000})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, []any{"Ensure this value is less than or equal to 1440."}, body["duration_minutes"])
}

func TestListTimeFilters(t *testing.T) {
	a := newAPI(t)
	admin := a.login("admin@example.com", "admin-pass")
	alice := a.signUp("alice@example.com")

	_, hall := a.do(http.MethodPost, "/halls/", admin, map[string]any{"name": "Red", "row_count": 5, "row_size": 5})
	_, movie := a.do(http.MethodPost, "/movies/", admin, map[string]any{"title": "Alien", "duration_minutes": 117})
	morning := tomorrowAt(10, 0)
	code, first := a.do(http.MethodPost, "/showings/", admin, map[string]any{
		"hall": hall["id"], "movie": movie["id"], "start_time": morning, "price": "5",
	})
	require.Equal(t, http.StatusCreated, code, first)
	code, second := a.do(http.MethodPost, "/showings/", admin, map[string]any{
		"hall": hall["id"], "movie": movie["id"], "start_time": tomorrowAt(16, 0), "price": "5",
	})
	require.Equal(t, http.StatusCreated, code, second)

	q := url.Values{"start_time": {morning}}
	code, page := a.do(http.MethodGet, "/showings/?"+q.Encode(), "", nil)
	require.Equal(t, http.StatusOK, code, page)
	assert.EqualValues(t, 1, page["count"])
	assert.Equal(t, first["id"], page["results"].([]any)[0].(map[string]any)["id"])

	code, page = a.do(http.MethodGet, "/showings/?start_time=tomorrow", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, []any{"Enter a valid date/time."}, page["start_time"])

	code, ticket := a.do(http.MethodPost, "/tickets/", alice, map[string]any{"showing": second["id"], "row_number": 1, "seat_number": 1})
	require.Equal(t, http.StatusCreated, code, ticket)
	code, _ = a.do(http.MethodPost, "/tickets/", alice, map[string]any{"showing": second["id"], "row_number": 1, "seat_number": 2})
	require.Equal(t, http.StatusCreated, code)

	q = url.Values{"created_at": {ticket["created_at"].(string)}}
	code, page = a.do(http.MethodGet, "/tickets/?"+q.Encode(), alice, nil)
	require.Equal(t, http.StatusOK, code, page)
	assert.EqualValues(t, 1, page["count"])
	assert.Equal(t, ticket["id"], page["results"].([]any)[0].(map[string]any)["id"])
}
