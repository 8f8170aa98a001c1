package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"

	"github.com/clubpos/backend/internal/models"
)

// ItemService manages the sellable item catalog. Items are priced in
// minor units and referenced by id from transaction bundles; bundle
// rows survive an item's deletion, which is why receipt rendering
// falls back to the bundle's own description and price.
type ItemService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewItemService(db *sql.DB) *ItemService {
	return &ItemService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

// List returns the whole catalog ordered by id.
func (is *ItemService) List() ([]models.Item, error) {
	rows, err := is.db.Query(`SELECT id, name, price FROM items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("fetching items: %w", err)
	}
	defer rows.Close()

	items := []models.Item{}
	for rows.Next() {
		var item models.Item
		if err := rows.Scan(&item.ID, &item.Name, &item.Price); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Get returns a single item or ErrNotFound.
func (is *ItemService) Get(id int64) (*models.Item, error) {
	var item models.Item
	err := is.db.QueryRow(`SELECT id, name, price FROM items WHERE id = $1`, id).
		Scan(&item.ID, &item.Name, &item.Price)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching item %d: %w", id, err)
	}
	return &item, nil
}

// LookupItems resolves a set of item ids in one query. Ids that no
// longer exist are simply absent from the result; callers decide how
// to render the gap.
func (is *ItemService) LookupItems(ids map[int64]struct{}) (map[int64]models.Item, error) {
	if len(ids) == 0 {
		return map[int64]models.Item{}, nil
	}

	idList := make([]int64, 0, len(ids))
	for id := range ids {
		idList = append(idList, id)
	}
	sort.Slice(idList, func(i, j int) bool { return idList[i] < idList[j] })

	rows, err := is.db.Query(`SELECT id, name, price FROM items WHERE id = ANY($1)`, pq.Array(idList))
	if err != nil {
		return nil, fmt.Errorf("looking up items: %w", err)
	}
	defer rows.Close()

	found := make(map[int64]models.Item, len(idList))
	for rows.Next() {
		var item models.Item
		if err := rows.Scan(&item.ID, &item.Name, &item.Price); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		found[item.ID] = item
	}
	return found, rows.Err()
}

// Create adds a catalog item and returns it with its assigned id.
func (is *ItemService) Create(name string, price models.NonNegCurrency) (*models.Item, error) {
	item := models.Item{Name: name, Price: price.Currency()}
	err := is.db.QueryRow(`
		INSERT INTO items (name, price)
		VALUES ($1, $2)
		RETURNING id
	`, name, price.Currency()).Scan(&item.ID)
	if err != nil {
		return nil, fmt.Errorf("inserting item: %w", err)
	}
	return &item, nil
}

type CreateItemRequest struct {
	Name  string `json:"name" validate:"required,max=100"`
	Price int64  `json:"price" validate:"gte=0"`
}

// ListItems handles catalog listing
// @Summary List items
// @Description List all sellable items
// @Tags items
// @Produce json
// @Success 200 {object} object{items=[]models.Item,count=int}
// @Failure 500 {object} ErrorResponse
// @Router /items [get]
func (is *ItemService) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := is.List()
	if err != nil {
		log.Printf("[ITEM] Failed to list items: %v", err)
		SendErrorResponse(w, "Failed to fetch items", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"items": items,
		"count": len(items),
	})
}

// GetItem handles single item lookup
// @Summary Get an item
// @Description Get a single item by id
// @Tags items
// @Produce json
// @Param id path int true "Item ID"
// @Success 200 {object} models.Item
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /items/{id} [get]
func (is *ItemService) GetItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid item id", http.StatusBadRequest, nil)
		return
	}

	item, err := is.Get(id)
	if err != nil {
		SendEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(item)
}

// CreateItem handles item creation
// @Summary Create an item
// @Description Add a sellable item to the catalog
// @Tags items
// @Accept json
// @Produce json
// @Param item body CreateItemRequest true "Item data"
// @Success 201 {object} models.Item
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /items [post]
func (is *ItemService) CreateItem(w http.ResponseWriter, r *http.Request) {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req CreateItemRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := is.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	price, err := models.NewNonNegCurrency(models.Currency(req.Price))
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	item, err := is.Create(req.Name, price)
	if err != nil {
		log.Printf("[ITEM] Failed to create item: %v", err)
		SendErrorResponse(w, "Failed to create item", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[ITEM] Created item %d (%s)", item.ID, item.Name)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(item)
}
