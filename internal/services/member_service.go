package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clubpos/backend/internal/models"
)

// MemberService manages club members and their credit accounts. Each
// member owns exactly one liabilities account so purchases on credit
// show up as money the club owes less of.
type MemberService struct {
	db        *sql.DB
	validator *ValidationHelper
}

type CreateMemberRequest struct {
	Name  string `json:"name" validate:"required,max=100"`
	Email string `json:"email" validate:"required,email"`
}

func NewMemberService(db *sql.DB) *MemberService {
	return &MemberService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

// Create registers a member together with their credit account. Both
// rows land in one database transaction; a member without an account
// cannot buy on credit and would be unrepresentable anyway.
func (ms *MemberService) Create(name, email string) (*models.Member, error) {
	dbTx, err := ms.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning member transaction: %w", err)
	}
	defer dbTx.Rollback()

	member := models.Member{
		Name:      name,
		Email:     email,
		CreatedAt: time.Now(),
	}

	err = dbTx.QueryRow(`
		INSERT INTO members (name, email, created_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`, member.Name, member.Email, member.CreatedAt).Scan(&member.ID)
	if err != nil {
		return nil, fmt.Errorf("inserting member: %w", err)
	}

	err = dbTx.QueryRow(`
		INSERT INTO book_accounts (name, account_type, creditor)
		VALUES ($1, $2, $3)
		RETURNING id
	`, "Credit: "+member.Name, models.AccountTypeLiabilities, member.ID).Scan(&member.AccountID)
	if err != nil {
		return nil, fmt.Errorf("inserting credit account: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("committing member transaction: %w", err)
	}

	log.Printf("[MEMBER] Registered member %d with credit account %d", member.ID, member.AccountID)
	return &member, nil
}

// Get returns one member with their credit account id, or ErrNotFound.
func (ms *MemberService) Get(id int64) (*models.Member, error) {
	var member models.Member
	err := ms.db.QueryRow(`
		SELECT m.id, m.name, m.email, m.created_at, a.id
		FROM members m
		JOIN book_accounts a ON a.creditor = m.id
		WHERE m.id = $1
	`, id).Scan(&member.ID, &member.Name, &member.Email, &member.CreatedAt, &member.AccountID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching member %d: %w", id, err)
	}
	return &member, nil
}

// List returns all members ordered by name.
func (ms *MemberService) List() ([]models.Member, error) {
	rows, err := ms.db.Query(`
		SELECT m.id, m.name, m.email, m.created_at, a.id
		FROM members m
		JOIN book_accounts a ON a.creditor = m.id
		ORDER BY m.name, m.id
	`)
	if err != nil {
		return nil, fmt.Errorf("fetching members: %w", err)
	}
	defer rows.Close()

	members := []models.Member{}
	for rows.Next() {
		var member models.Member
		if err := rows.Scan(&member.ID, &member.Name, &member.Email,
			&member.CreatedAt, &member.AccountID); err != nil {
			return nil, fmt.Errorf("scanning member: %w", err)
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

// CreateMember handles member registration
// @Summary Register a member
// @Description Register a club member and open their credit account
// @Tags members
// @Accept json
// @Produce json
// @Param member body CreateMemberRequest true "Member data"
// @Success 201 {object} models.Member
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /members [post]
func (ms *MemberService) CreateMember(w http.ResponseWriter, r *http.Request) {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req CreateMemberRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := ms.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	member, err := ms.Create(req.Name, req.Email)
	if err != nil {
		log.Printf("[MEMBER] Failed to register member: %v", err)
		SendErrorResponse(w, "Failed to register member", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(member)
}

// GetMember handles single member lookup
// @Summary Get a member
// @Description Get a member and their credit account id
// @Tags members
// @Produce json
// @Param id path int true "Member ID"
// @Success 200 {object} models.Member
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /members/{id} [get]
func (ms *MemberService) GetMember(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid member id", http.StatusBadRequest, nil)
		return
	}

	member, err := ms.Get(id)
	if err != nil {
		SendEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(member)
}

// ListMembers handles member listing
// @Summary List members
// @Description List all registered members
// @Tags members
// @Produce json
// @Success 200 {object} object{members=[]models.Member,count=int}
// @Failure 500 {object} ErrorResponse
// @Router /members [get]
func (ms *MemberService) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := ms.List()
	if err != nil {
		log.Printf("[MEMBER] Failed to list members: %v", err)
		SendErrorResponse(w, "Failed to fetch members", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"members": members,
		"count":   len(members),
	})
}
