package license

import (
	"context"
	"strings"
	"time"

	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/database"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
	recentUsers    = 10
)

// Pagination is a normalized page request
type Pagination struct {
	Page    int
	PerPage int
}

// NewPagination clamps page to >= 1 and perPage to [1, 100], defaulting to 20
func NewPagination(page, perPage int) Pagination {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return Pagination{Page: page, PerPage: perPage}
}

func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}

func (p Pagination) Pages(total int) int {
	return (total + p.PerPage - 1) / p.PerPage
}

// UserSummary is a user as shown to administrators
type UserSummary struct {
	database.User
	ActivationStatus  Status     `json:"activation_status"`
	ActivationExpires *time.Time `json:"activation_expires"`
}

// Summarize evaluates the user's entitlement for administrative display
func (s *Service) Summarize(ctx context.Context, user *database.User, now time.Time) (UserSummary, error) {
	ent, err := s.evaluate(ctx, s.store, user, now)
	if err != nil {
		return UserSummary{}, err
	}
	summary := UserSummary{User: *user, ActivationStatus: ent.Status}
	if !user.IsAdmin {
		summary.ActivationExpires = ent.ExpiresAt
	}
	return summary, nil
}

func (s *Service) summarizeAll(ctx context.Context, users []database.User, now time.Time) ([]UserSummary, error) {
	out := make([]UserSummary, 0, len(users))
	for i := range users {
		summary, err := s.Summarize(ctx, &users[i], now)
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, nil
}

// UserQuery filters and pages the administrative user listing
type UserQuery struct {
	Search  string
	Type    string // admin or client
	Status  string // active, trial, expired or admin
	Page    int
	PerPage int
}

// UserPage is one page of user summaries
type UserPage struct {
	Users []UserSummary `json:"users"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Pages int           `json:"pages"`
}

// ListUsers lists accounts newest first, hiding the superadmin.
// A status filter is applied before paging, so totals count matching users.
func (s *Service) ListUsers(ctx context.Context, q UserQuery) (*UserPage, error) {
	p := NewPagination(q.Page, q.PerPage)
	now := s.now()
	filter := database.UserFilter{
		Search: strings.TrimSpace(q.Search),
		Type:   strings.TrimSpace(q.Type),
	}
	status := strings.TrimSpace(q.Status)

	if status == "" {
		filter.Limit, filter.Offset = p.PerPage, p.Offset()
		users, total, err := s.store.ListUsers(ctx, filter)
		if err != nil {
			return nil, err
		}
		summaries, err := s.summarizeAll(ctx, users, now)
		if err != nil {
			return nil, err
		}
		return &UserPage{Users: summaries, Total: total, Page: p.Page, Pages: p.Pages(total)}, nil
	}

	users, _, err := s.store.ListUsers(ctx, filter)
	if err != nil {
		return nil, err
	}
	all, err := s.summarizeAll(ctx, users, now)
	if err != nil {
		return nil, err
	}

	matched := make([]UserSummary, 0, len(all))
	for _, u := range all {
		if status == "admin" && u.IsAdmin || status != "admin" && string(u.ActivationStatus) == status {
			matched = append(matched, u)
		}
	}

	total := len(matched)
	start := p.Offset()
	if start > total {
		start = total
	}
	end := start + p.PerPage
	if end > total {
		end = total
	}
	return &UserPage{Users: matched[start:end], Total: total, Page: p.Page, Pages: p.Pages(total)}, nil
}

// UserDetail is the full administrative view of one account
type UserDetail struct {
	User           UserSummary                `json:"user"`
	Devices        []database.Device          `json:"devices"`
	ActivationKeys []database.ActivationKey   `json:"activation_keys"`
	Databases      []database.ProductDatabase `json:"databases"`
}

// GetUserDetail loads a user with devices, keys and catalogs
func (s *Service) GetUserDetail(ctx context.Context, userID int64) (*UserDetail, error) {
	if userID == database.SuperAdminID {
		return nil, ErrUserNotFound
	}
	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	summary, err := s.Summarize(ctx, user, s.now())
	if err != nil {
		return nil, err
	}
	devices, err := s.store.DevicesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	keys, err := s.store.KeysByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	databases, err := s.store.DatabasesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	detail := &UserDetail{
		User:           summary,
		Devices:        devices,
		ActivationKeys: keys,
		Databases:      databases,
	}
	if detail.Devices == nil {
		detail.Devices = []database.Device{}
	}
	if detail.ActivationKeys == nil {
		detail.ActivationKeys = []database.ActivationKey{}
	}
	if detail.Databases == nil {
		detail.Databases = []database.ProductDatabase{}
	}
	return detail, nil
}

// Dashboard holds the admin statistics
type Dashboard struct {
	TotalUsers    int           `json:"total_users"`
	ActiveTrials  int           `json:"active_trials"`
	ActiveKeys    int           `json:"active_keys"`
	ExpiredUsers  int           `json:"expired_users"`
	TotalKeys     int           `json:"total_keys"`
	AvailableKeys int           `json:"available_keys"`
	SoldKeys      int           `json:"sold_keys"`
	Revenue       float64       `json:"revenue"`
	RecentUsers   []UserSummary `json:"recent_users"`
}

// Dashboard aggregates counters and the ten newest accounts
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	now := s.now()
	stats, err := s.store.Stats(ctx, now)
	if err != nil {
		return nil, err
	}

	recent, _, err := s.store.ListUsers(ctx, database.UserFilter{Limit: recentUsers})
	if err != nil {
		return nil, err
	}
	summaries, err := s.summarizeAll(ctx, recent, now)
	if err != nil {
		return nil, err
	}

	expired := stats.TotalUsers - stats.ActiveTrials - stats.ActiveKeys - stats.AdminUsers
	if expired < 0 {
		expired = 0
	}

	return &Dashboard{
		TotalUsers:    stats.TotalUsers,
		ActiveTrials:  stats.ActiveTrials,
		ActiveKeys:    stats.ActiveKeys,
		ExpiredUsers:  expired,
		TotalKeys:     stats.TotalKeys,
		AvailableKeys: stats.AvailableKeys,
		SoldKeys:      stats.SoldKeys,
		Revenue:       stats.Revenue,
		RecentUsers:   summaries,
	}, nil
}
