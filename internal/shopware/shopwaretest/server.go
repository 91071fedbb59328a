// Package shopwaretest предоставляет in-memory имитацию REST API магазина для тестов.
package shopwaretest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// Article описывает товар каталога имитации.
type Article struct {
	ID    int
	Name  string
	TaxID int
	Tax   string
}

// Customer описывает покупателя имитации.
type Customer struct {
	ID       int
	Email    string
	GroupKey string
	Password string
}

// Order хранит созданный заказ и исходное тело запроса.
type Order struct {
	ID         int
	Number     string
	ExternalID string
	Body       []byte
}

// Server имитирует API магазина поверх httptest.Server.
type Server struct {
	*httptest.Server

	Username string
	Password string

	mu         sync.Mutex
	nextID     int
	articles   map[string]Article
	customers  []Customer
	orders     []Order
	calls      map[string]int
	failStatus map[string]int
}

// New запускает имитацию и регистрирует её остановку по завершении теста.
func New(t *testing.T) *Server {
	t.Helper()

	s := &Server{
		Username:   "api",
		Password:   "secret",
		nextID:     100,
		articles:   make(map[string]Article),
		calls:      make(map[string]int),
		failStatus: make(map[string]int),
	}

	r := chi.NewRouter()
	r.Use(s.basicAuth)
	r.Get("/orders", s.listOrders)
	r.Post("/orders", s.createOrder)
	r.Get("/customers", s.listCustomers)
	r.Post("/customers", s.createCustomer)
	r.Get("/articles/{sku}", s.getArticle)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)

	return s
}

// AddArticle регистрирует товар с артикулом sku.
func (s *Server) AddArticle(sku string, a Article) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.articles[sku] = a
}

// AddCustomer регистрирует существующего покупателя.
func (s *Server) AddCustomer(c Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers = append(s.customers, c)
}

// AddOrder регистрирует уже существующий заказ.
func (s *Server) AddOrder(o Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, o)
}

// FailWith заставляет маршрут (например, "POST /orders") всегда отвечать статусом status.
func (s *Server) FailWith(route string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStatus[route] = status
}

// Calls возвращает число обращений к маршруту.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// Orders возвращает созданные заказы.
func (s *Server) Orders() []Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Order(nil), s.orders...)
}

// Customers возвращает покупателей.
func (s *Server) Customers() []Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Customer(nil), s.customers...)
}

func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.Username || pass != s.Password {
			http.Error(w, `{"success":false,"message":"invalid credentials"}`, http.StatusUnauthorized)
			return
		}

		route := r.Method + " " + r.URL.Path
		if strings.HasPrefix(r.URL.Path, "/articles/") {
			route = r.Method + " /articles"
		}

		s.mu.Lock()
		s.calls[route]++
		status := s.failStatus[route]
		s.mu.Unlock()

		if status != 0 {
			http.Error(w, http.StatusText(status), status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	value := q.Get("filter[0][value]")

	s.mu.Lock()
	data := []map[string]any{}
	for _, o := range s.orders {
		if q.Get("filter[0][property]") == "attribute.attribute1" && o.ExternalID != value {
			continue
		}
		data = append(data, map[string]any{
			"id":        o.ID,
			"number":    o.Number,
			"attribute": map[string]any{"attribute1": o.ExternalID},
		})
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data, "total": len(data)})
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req struct {
		Number    string `json:"number"`
		Attribute struct {
			Attribute1 string `json:"attribute1"`
		} `json:"attribute"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": err.Error()})
		return
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.orders = append(s.orders, Order{ID: id, Number: req.Number, ExternalID: req.Attribute.Attribute1, Body: body})
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": map[string]any{"id": id}})
}

func (s *Server) listCustomers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	email := q.Get("filter[0][value]")
	group := q.Get("filter[1][value]")

	s.mu.Lock()
	data := []map[string]any{}
	for _, c := range s.customers {
		if !strings.EqualFold(c.Email, email) || (group != "" && c.GroupKey != group) {
			continue
		}
		data = append(data, map[string]any{"id": c.ID, "email": c.Email, "groupKey": c.GroupKey})
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data, "total": len(data)})
}

func (s *Server) createCustomer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		GroupKey string `json:"groupKey"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid customer"})
		return
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.customers = append(s.customers, Customer{ID: id, Email: req.Email, GroupKey: req.GroupKey, Password: req.Password})
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": map[string]any{"id": id}})
}

func (s *Server) getArticle(w http.ResponseWriter, r *http.Request) {
	sku := chi.URLParam(r, "sku")

	s.mu.Lock()
	a, ok := s.articles[sku]
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Article by id " + sku + " not found"})
		return
	}

	data := map[string]any{
		"id":         a.ID,
		"name":       a.Name,
		"taxId":      a.TaxID,
		"mainDetail": map[string]any{"number": sku},
	}
	if a.Tax != "" {
		data["tax"] = map[string]any{"id": a.TaxID, "tax": a.Tax}
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
