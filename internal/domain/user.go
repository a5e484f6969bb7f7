package domain

import (
	"slices"
	"strings"
)

type Role string

const (
	RoleBasic  Role = "ROLE_BASIC"
	RoleFamily Role = "ROLE_FAMILY"
	RoleAdmin  Role = "ROLE_ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RoleBasic, RoleFamily, RoleAdmin:
		return true
	}
	return false
}

type Roles []Role

func (rs Roles) Has(r Role) bool { return slices.Contains(rs, r) }

// String 逗号拼接，落库用
func (rs Roles) String() string {
	parts := make([]string, 0, len(rs))
	for _, r := range rs {
		parts = append(parts, string(r))
	}
	return strings.Join(parts, ",")
}

func (rs Roles) Strings() []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, string(r))
	}
	return out
}

// Normalize 去重 + 排序
func (rs Roles) Normalize() Roles {
	out := slices.Clone(rs)
	slices.Sort(out)
	return slices.Compact(out)
}

func ParseRoles(s string) Roles {
	var out Roles
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, Role(p))
		}
	}
	return out
}

func RolesFromStrings(ss []string) Roles {
	out := make(Roles, 0, len(ss))
	for _, s := range ss {
		out = append(out, Role(s))
	}
	return out
}

// User 解密后的视图，仅在进程内使用
type User struct {
	ID                    int64   `json:"id"`
	Email                 string  `json:"email"`
	FirstName             string  `json:"firstName"`
	LastName              string  `json:"lastName"`
	PasswordHash          string  `json:"-"`
	PinHash               string  `json:"-"`
	Roles                 Roles   `json:"roles"`
	Enabled               bool    `json:"enabled"`
	CalendarIDs           []int64 `json:"calendars"`
	AccessibleCalendarIDs []int64 `json:"accessibleCalendars"`
}

type NewUser struct {
	Email     string
	FirstName string
	LastName  string
	Password  string
	Pin       string
	Roles     Roles
}

// ProfileUpdate nil 字段保持不变
type ProfileUpdate struct {
	Email     *string
	FirstName *string
	LastName  *string
	Enabled   *bool
}

// CredentialChange 明文凭据，只在显式修改时传入
type CredentialChange struct {
	Password *string
	Pin      *string
}

// Principal 已认证的调用方
type Principal struct {
	ID    int64 `json:"id"`
	Roles Roles `json:"roles"`
}

// AccessSnapshot 访问判定所需的最小数据；角色取库里的当前值，不信任 token
type AccessSnapshot struct {
	UserID            int64   `json:"userId"`
	Roles             Roles   `json:"roles"`
	OwnedCalendarIDs  []int64 `json:"owned"`
	SharedCalendarIDs []int64 `json:"shared"`
}
