package repository

import (
	"context"
	"time"

	"officehours/internal/common/cache"
	"officehours/internal/common/db"
	"officehours/internal/queue/model"
)

const (
	memberCacheKeyPrefix       = "queue:member:"
	defaultMemberCacheTTL      = 5 * time.Minute
	defaultMemberCacheEmptyTTL = 30 * time.Second
	defaultMemberLocalTTL      = 10 * time.Second
	defaultMemberLocalSize     = 4096
)

// MembershipRepository resolves and records course roles.
type MembershipRepository interface {
	// RoleOf returns the user's role in the course; ok is false for non-members.
	RoleOf(ctx context.Context, courseID, userID string) (role model.Role, ok bool, err error)
	// SetRole creates or replaces a membership.
	SetRole(ctx context.Context, tx db.Transaction, courseID, userID string, role model.Role) error
	// AddIfAbsent creates a membership unless one exists and returns the effective role.
	AddIfAbsent(ctx context.Context, courseID, userID string, role model.Role) (model.Role, error)
	// ListByUser returns every course the user belongs to.
	ListByUser(ctx context.Context, userID string) ([]model.Membership, error)
}

// SQLMembershipRepository reads through an in-process LRU and Redis before SQL.
type SQLMembershipRepository struct {
	db       db.Database
	cache    cache.Cache
	local    *cache.LRUCache[model.Role]
	ttl      time.Duration
	emptyTTL time.Duration
	timeout  time.Duration
}

// NewMembershipRepository creates a membership repository; cacheClient may be nil.
func NewMembershipRepository(database db.Database, cacheClient cache.Cache, timeout time.Duration) *SQLMembershipRepository {
	return &SQLMembershipRepository{
		db:       database,
		cache:    cacheClient,
		local:    cache.NewLRUCache[model.Role](defaultMemberLocalSize, defaultMemberLocalTTL),
		ttl:      defaultMemberCacheTTL,
		emptyTTL: defaultMemberCacheEmptyTTL,
		timeout:  timeout,
	}
}

// RoleOf returns the role of a user in a course.
func (r *SQLMembershipRepository) RoleOf(ctx context.Context, courseID, userID string) (model.Role, bool, error) {
	key := memberCacheKey(courseID, userID)
	if role, ok := r.local.Get(key); ok {
		return role, true, nil
	}

	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()
	role, err := cache.GetWithCached[model.Role](
		ctx,
		r.cache,
		key,
		cache.JitterTTL(r.ttl),
		cache.JitterTTL(r.emptyTTL),
		func(role model.Role) bool { return role == "" },
		func(role model.Role) string { return string(role) },
		func(data string) (model.Role, error) { return model.Role(data), nil },
		func(ctx context.Context) (model.Role, error) {
			return r.roleFromDB(ctx, r.db, courseID, userID)
		},
	)
	if err != nil {
		return "", false, err
	}
	if role == "" {
		return "", false, nil
	}
	r.local.Set(key, role, 0)
	return role, true, nil
}

func (r *SQLMembershipRepository) roleFromDB(ctx context.Context, querier db.Querier, courseID, userID string) (model.Role, error) {
	var role string
	err := querier.QueryRow(ctx, "SELECT role FROM course_members WHERE course_id = ? AND user_id = ? LIMIT 1", courseID, userID).Scan(&role)
	if err != nil {
		if db.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return model.NormalizeRole(role), nil
}

// SetRole grants role and drops cached copies.
func (r *SQLMembershipRepository) SetRole(ctx context.Context, tx db.Transaction, courseID, userID string, role model.Role) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	key := memberCacheKey(courseID, userID)
	defer r.local.Delete(key)
	querier := db.GetQuerier(r.db, tx)
	now := time.Now().UnixMilli()
	return cache.UpdateCached(ctx, r.cache, key, func(ctx context.Context) error {
		existing, err := r.roleFromDB(ctx, querier, courseID, userID)
		if err != nil {
			return err
		}
		if existing == "" {
			_, err = querier.Exec(ctx,
				"INSERT INTO course_members (course_id, user_id, role, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
				courseID, userID, string(role), now, now)
			return err
		}
		_, err = querier.Exec(ctx,
			"UPDATE course_members SET role = ?, updated_at = ? WHERE course_id = ? AND user_id = ?",
			string(role), now, courseID, userID)
		return err
	})
}

// AddIfAbsent joins a user with role unless already a member.
func (r *SQLMembershipRepository) AddIfAbsent(ctx context.Context, courseID, userID string, role model.Role) (model.Role, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	key := memberCacheKey(courseID, userID)
	defer r.local.Delete(key)
	now := time.Now().UnixMilli()
	var effective model.Role
	err := cache.UpdateCached(ctx, r.cache, key, func(ctx context.Context) error {
		_, err := r.db.Exec(ctx,
			"INSERT INTO course_members (course_id, user_id, role, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			courseID, userID, string(role), now, now)
		if err != nil && !db.IsDuplicate(err) {
			return err
		}
		effective, err = r.roleFromDB(ctx, r.db, courseID, userID)
		return err
	})
	return effective, err
}

// ListByUser returns the courses a user belongs to.
func (r *SQLMembershipRepository) ListByUser(ctx context.Context, userID string) ([]model.Membership, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT m.course_id, m.user_id, m.role, COALESCE(c.name, '')
		FROM course_members m LEFT JOIN courses c ON c.course_id = m.course_id
		WHERE m.user_id = ?
		ORDER BY m.course_id ASC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	memberships := make([]model.Membership, 0)
	for rows.Next() {
		var m model.Membership
		var role string
		if err := rows.Scan(&m.CourseID, &m.UserID, &role, &m.CourseName); err != nil {
			return nil, err
		}
		m.Role = model.NormalizeRole(role)
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

func memberCacheKey(courseID, userID string) string {
	return memberCacheKeyPrefix + courseID + ":" + userID
}
