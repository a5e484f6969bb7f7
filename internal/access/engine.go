// Package access 访问规则：所有判定默认拒绝，不向调用方返回错误。
package access

import (
	"context"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"health-diary/internal/domain"
)

// 角色对应的可拥有日历数上限；拥有数 >= 上限即视为已满
const (
	BasicCalendarQuota  = 1
	FamilyCalendarQuota = 4
	Unlimited           = -1
)

// Lookup 读取用户的拥有 / 共享日历；用户不存在时返回 nil, nil
type Lookup interface {
	AccessSnapshot(ctx context.Context, userID int64) (*domain.AccessSnapshot, error)
}

// LookupFunc 让普通函数（如 repo 方法）充当 Lookup
type LookupFunc func(ctx context.Context, userID int64) (*domain.AccessSnapshot, error)

func (f LookupFunc) AccessSnapshot(ctx context.Context, userID int64) (*domain.AccessSnapshot, error) {
	return f(ctx, userID)
}

var decisions = prometheus.NewCounterVec(
	prometheus.CounterOpts{Name: "access_decisions_total", Help: "Access rule evaluations"},
	[]string{"rule", "result"},
)

func init() { prometheus.MustRegister(decisions) }

type Engine struct {
	lookup Lookup
	log    *zap.Logger
}

func New(lookup Lookup, l *zap.Logger) *Engine {
	if l == nil {
		l = zap.NewNop()
	}
	return &Engine{lookup: lookup, log: l}
}

func record(rule string, ok bool) bool {
	res := "deny"
	if ok {
		res = "allow"
	}
	decisions.WithLabelValues(rule, res).Inc()
	return ok
}

func (e *Engine) snapshot(ctx context.Context, p *domain.Principal) *domain.AccessSnapshot {
	if p == nil {
		return nil
	}
	s, err := e.lookup.AccessSnapshot(ctx, p.ID)
	if err != nil {
		e.log.Warn("access lookup failed", zap.Int64("uid", p.ID), zap.Error(err))
		return nil
	}
	return s
}

func (e *Engine) IsCorrectUser(p *domain.Principal, userID int64) bool {
	return record("correct_user", p != nil && p.ID == userID)
}

func (e *Engine) IsAdmin(p *domain.Principal) bool {
	return record("admin", p != nil && p.Roles.Has(domain.RoleAdmin))
}

func (e *Engine) IsOwner(ctx context.Context, p *domain.Principal, calendarID int64) bool {
	s := e.snapshot(ctx, p)
	return record("owner", s != nil && slices.Contains(s.OwnedCalendarIDs, calendarID))
}

func (e *Engine) IsSharedWith(ctx context.Context, p *domain.Principal, calendarID int64) bool {
	s := e.snapshot(ctx, p)
	return record("shared", s != nil && slices.Contains(s.SharedCalendarIDs, calendarID))
}

// CanAccess 拥有或被共享；管理员在这里没有特权
func (e *Engine) CanAccess(ctx context.Context, p *domain.Principal, calendarID int64) bool {
	s := e.snapshot(ctx, p)
	ok := s != nil && (slices.Contains(s.OwnedCalendarIDs, calendarID) ||
		slices.Contains(s.SharedCalendarIDs, calendarID))
	return record("can_access", ok)
}

func (e *Engine) OwnsNoCalendars(ctx context.Context, p *domain.Principal) bool {
	s := e.snapshot(ctx, p)
	return record("owns_none", s != nil && len(s.OwnedCalendarIDs) == 0)
}

// IsActive 用户存在且未被禁用
func (e *Engine) IsActive(ctx context.Context, p *domain.Principal) bool {
	return record("active", e.snapshot(ctx, p) != nil)
}

// ExceedsCalendarQuota true 表示不能再建日历；按库里的角色算，查不到用户同样视为超额
func (e *Engine) ExceedsCalendarQuota(ctx context.Context, p *domain.Principal) bool {
	s := e.snapshot(ctx, p)
	if s == nil {
		return !record("quota", false)
	}
	return !record("quota", !AtQuota(s.Roles, len(s.OwnedCalendarIDs)))
}

// QuotaFor 多个角色取最宽的一个；没有已知角色则为 0
func QuotaFor(roles domain.Roles) int {
	switch {
	case roles.Has(domain.RoleAdmin):
		return Unlimited
	case roles.Has(domain.RoleFamily):
		return FamilyCalendarQuota
	case roles.Has(domain.RoleBasic):
		return BasicCalendarQuota
	}
	return 0
}

func AtQuota(roles domain.Roles, owned int) bool {
	q := QuotaFor(roles)
	return q != Unlimited && owned >= q
}
