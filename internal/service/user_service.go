package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"health-diary/internal/core/crypto"
	"health-diary/internal/domain"
	"health-diary/internal/feature/user"
	"health-diary/internal/repo"
	"health-diary/pkg/utils"
)

type UserService struct {
	repo   *repo.UserRepo
	crypto *crypto.Service
	deps
}

func NewUserService(r *repo.UserRepo, c *crypto.Service, opts ...Option) *UserService {
	return &UserService{repo: r, crypto: c, deps: newDeps(opts)}
}

func validateNewUser(nu *domain.NewUser, allowAdmin bool) error {
	switch {
	case !utils.EmailValid(nu.Email):
		return domain.Validation("invalid email")
	case !utils.PasswordStrong(nu.Password):
		return domain.Validation("password must be 8-30 characters with upper case, lower case and a digit")
	case utils.Blank(nu.FirstName):
		return domain.Validation("firstName is required")
	case utils.Blank(nu.LastName):
		return domain.Validation("lastName is required")
	case !utils.PinValid(nu.Pin):
		return domain.Validation("pin must be exactly 4 characters")
	}
	if len(nu.Roles) == 0 {
		nu.Roles = domain.Roles{domain.RoleBasic}
	}
	for _, r := range nu.Roles {
		if !r.Valid() {
			return domain.Validation("unknown role %q", r)
		}
		if r == domain.RoleAdmin && !allowAdmin {
			return domain.Validation("role %s cannot be requested", r)
		}
	}
	nu.Roles = nu.Roles.Normalize()
	return nil
}

// Register 公开注册：只能申请 BASIC / FAMILY
func (s *UserService) Register(ctx context.Context, nu domain.NewUser) (int64, error) {
	if err := validateNewUser(&nu, false); err != nil {
		return 0, err
	}
	exists, err := s.ExistsByEmail(ctx, nu.Email)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, domain.Conflict("email already registered")
	}
	return s.create(ctx, nu)
}

// CreateUser 不做 email 预检查，并发重复由唯一索引拒绝
func (s *UserService) CreateUser(ctx context.Context, nu domain.NewUser) (int64, error) {
	if err := validateNewUser(&nu, true); err != nil {
		return 0, err
	}
	return s.create(ctx, nu)
}

func (s *UserService) create(ctx context.Context, nu domain.NewUser) (int64, error) {
	m := &user.UserModel{
		EmailIndex: s.crypto.BlindIndex(nu.Email),
		Roles:      nu.Roles.String(),
		Enabled:    true,
	}
	var err error
	if m.Email, err = s.crypto.Encrypt(nu.Email); err != nil {
		return 0, err
	}
	if m.FirstName, err = s.crypto.Encrypt(nu.FirstName); err != nil {
		return 0, err
	}
	if m.LastName, err = s.crypto.Encrypt(nu.LastName); err != nil {
		return 0, err
	}
	if m.PasswordHash, err = s.crypto.Hash(nu.Password); err != nil {
		return 0, err
	}
	if m.PinHash, err = s.crypto.Hash(nu.Pin); err != nil {
		return 0, err
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return 0, err
	}
	s.log.Info("user created", zap.Int64("uid", m.ID), zap.String("roles", m.Roles))
	return m.ID, nil
}

func (s *UserService) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return s.repo.ExistsByEmailIndex(ctx, s.crypto.BlindIndex(email))
}

func (s *UserService) decrypt(m *user.UserModel) (*domain.User, error) {
	u := &domain.User{
		ID:           m.ID,
		PasswordHash: m.PasswordHash,
		PinHash:      m.PinHash,
		Roles:        domain.ParseRoles(m.Roles),
		Enabled:      m.Enabled,
	}
	var err error
	if u.Email, err = s.crypto.Decrypt(m.Email); err != nil {
		return nil, s.decryptFailed(m.ID, "email", err)
	}
	if u.FirstName, err = s.crypto.Decrypt(m.FirstName); err != nil {
		return nil, s.decryptFailed(m.ID, "firstName", err)
	}
	if u.LastName, err = s.crypto.Decrypt(m.LastName); err != nil {
		return nil, s.decryptFailed(m.ID, "lastName", err)
	}
	return u, nil
}

func (s *UserService) decryptFailed(id int64, field string, err error) error {
	s.log.Error("decrypt user field", zap.Int64("uid", id), zap.String("field", field), zap.Error(err))
	return fmt.Errorf("user %d %s: %w", id, field, err)
}

func (s *UserService) withCalendars(ctx context.Context, u *domain.User) (*domain.User, error) {
	owned, shared, err := s.repo.CalendarIDs(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.CalendarIDs, u.AccessibleCalendarIDs = owned, shared
	return u, nil
}

// FindByID 不存在返回 nil, nil
func (s *UserService) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	m, err := s.repo.FindByID(ctx, id)
	if err != nil || m == nil {
		return nil, err
	}
	u, err := s.decrypt(m)
	if err != nil {
		return nil, err
	}
	return s.withCalendars(ctx, u)
}

// FindByEmail 精确匹配（区分大小写）
func (s *UserService) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	m, err := s.repo.FindByEmailIndex(ctx, s.crypto.BlindIndex(email))
	if err != nil || m == nil {
		return nil, err
	}
	u, err := s.decrypt(m)
	if err != nil {
		return nil, err
	}
	return s.withCalendars(ctx, u)
}

// UpdateProfile 只重新加密确实变化的字段
func (s *UserService) UpdateProfile(ctx context.Context, id int64, upd domain.ProfileUpdate) error {
	m, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if m == nil {
		return domain.NotFound("user %d not found", id)
	}
	cur, err := s.decrypt(m)
	if err != nil {
		return err
	}

	fields := map[string]any{}
	if upd.Email != nil && *upd.Email != cur.Email {
		if !utils.EmailValid(*upd.Email) {
			return domain.Validation("invalid email")
		}
		idx := s.crypto.BlindIndex(*upd.Email)
		taken, err := s.repo.ExistsByEmailIndex(ctx, idx)
		if err != nil {
			return err
		}
		if taken {
			return domain.Conflict("email already registered")
		}
		if fields["email"], err = s.crypto.Encrypt(*upd.Email); err != nil {
			return err
		}
		fields["email_index"] = idx
	}
	if upd.FirstName != nil && *upd.FirstName != cur.FirstName {
		if utils.Blank(*upd.FirstName) {
			return domain.Validation("firstName is required")
		}
		if fields["first_name"], err = s.crypto.Encrypt(*upd.FirstName); err != nil {
			return err
		}
	}
	if upd.LastName != nil && *upd.LastName != cur.LastName {
		if utils.Blank(*upd.LastName) {
			return domain.Validation("lastName is required")
		}
		if fields["last_name"], err = s.crypto.Encrypt(*upd.LastName); err != nil {
			return err
		}
	}
	if upd.Enabled != nil && *upd.Enabled != cur.Enabled {
		fields["enabled"] = *upd.Enabled
	}
	return s.repo.Update(ctx, id, fields)
}

// ChangeCredentials 仅在显式提供明文时重新哈希
func (s *UserService) ChangeCredentials(ctx context.Context, id int64, ch domain.CredentialChange) error {
	if ch.Password != nil && !utils.PasswordStrong(*ch.Password) {
		return domain.Validation("password must be 8-30 characters with upper case, lower case and a digit")
	}
	if ch.Pin != nil && !utils.PinValid(*ch.Pin) {
		return domain.Validation("pin must be exactly 4 characters")
	}
	fields := map[string]any{}
	if ch.Password != nil {
		h, err := s.crypto.Hash(*ch.Password)
		if err != nil {
			return err
		}
		fields["password_hash"] = h
	}
	if ch.Pin != nil {
		h, err := s.crypto.Hash(*ch.Pin)
		if err != nil {
			return err
		}
		fields["pin_hash"] = h
	}
	if len(fields) == 0 {
		return domain.Validation("nothing to change")
	}
	return s.repo.Update(ctx, id, fields)
}

func (s *UserService) SetRoles(ctx context.Context, id int64, roles domain.Roles) error {
	if len(roles) == 0 {
		return domain.Validation("at least one role is required")
	}
	for _, r := range roles {
		if !r.Valid() {
			return domain.Validation("unknown role %q", r)
		}
	}
	if err := s.repo.Update(ctx, id, map[string]any{"roles": roles.Normalize().String()}); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// SetEnabled 禁用后访问快照立即失效，已签发的 token 也拿不到日历数据
func (s *UserService) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	if err := s.repo.Update(ctx, id, map[string]any{"enabled": enabled}); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	s.log.Info("user enabled changed", zap.Int64("uid", id), zap.Bool("enabled", enabled))
	return nil
}

// DeleteUser 拥有的日历、登记、共享一并删除
func (s *UserService) DeleteUser(ctx context.Context, id int64) error {
	purged, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.purgeImages(ctx, purged.CalendarIDs...)
	s.invalidate(ctx, append([]int64{id}, purged.Grantees...)...)
	s.log.Info("user deleted", zap.Int64("uid", id), zap.Int("calendars", len(purged.CalendarIDs)))
	return nil
}

func (s *UserService) VerifyPin(ctx context.Context, id int64, pin string) (bool, error) {
	m, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	if m == nil {
		return false, domain.NotFound("user %d not found", id)
	}
	return s.crypto.Matches(pin, m.PinHash), nil
}

// LoadUserByIdentity 找不到属于认证失败，不是 404
func (s *UserService) LoadUserByIdentity(ctx context.Context, email string) (*domain.Principal, error) {
	m, err := s.loadEnabled(ctx, email)
	if err != nil {
		return nil, err
	}
	return &domain.Principal{ID: m.ID, Roles: domain.ParseRoles(m.Roles)}, nil
}

func (s *UserService) loadEnabled(ctx context.Context, email string) (*user.UserModel, error) {
	m, err := s.repo.FindByEmailIndex(ctx, s.crypto.BlindIndex(email))
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, domain.Unauthorized("bad credentials")
	}
	if !m.Enabled {
		return nil, domain.Unauthorized("account disabled")
	}
	return m, nil
}

func (s *UserService) Authenticate(ctx context.Context, email, password string) (*domain.Principal, error) {
	m, err := s.loadEnabled(ctx, email)
	if err != nil {
		return nil, err
	}
	if !s.crypto.Matches(password, m.PasswordHash) {
		return nil, domain.Unauthorized("bad credentials")
	}
	return &domain.Principal{ID: m.ID, Roles: domain.ParseRoles(m.Roles)}, nil
}

func (s *UserService) AccessSnapshot(ctx context.Context, userID int64) (*domain.AccessSnapshot, error) {
	return s.repo.Snapshot(ctx, userID)
}

func (s *UserService) List(ctx context.Context, offset, limit int) (domain.Page[domain.User], error) {
	offset, limit = page(offset, limit)
	out := domain.Page[domain.User]{Items: []domain.User{}, Offset: offset, Limit: limit}
	rows, total, err := s.repo.List(ctx, offset, limit)
	if err != nil {
		return out, err
	}
	for i := range rows {
		u, err := s.decrypt(&rows[i])
		if err != nil {
			return out, err
		}
		if u, err = s.withCalendars(ctx, u); err != nil {
			return out, err
		}
		out.Items = append(out.Items, *u)
	}
	out.Total = total
	return out, nil
}

// EnsureAdmins 给已存在的账号补上 ADMIN 角色；返回实际变更的数量
func (s *UserService) EnsureAdmins(ctx context.Context, emails []string) (int, error) {
	n := 0
	for i, email := range emails {
		m, err := s.repo.FindByEmailIndex(ctx, s.crypto.BlindIndex(email))
		if err != nil {
			return n, err
		}
		if m == nil {
			s.log.Warn("bootstrap admin not registered", zap.Int("position", i))
			continue
		}
		roles := domain.ParseRoles(m.Roles)
		if roles.Has(domain.RoleAdmin) {
			continue
		}
		if err := s.SetRoles(ctx, m.ID, append(roles, domain.RoleAdmin)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// RotateEncryption 把旧密钥版本的密文改写成当前版本
func (s *UserService) RotateEncryption(ctx context.Context) (int, error) {
	n := 0
	err := s.repo.EachBatch(ctx, 100, func(batch []user.UserModel) error {
		for _, m := range batch {
			fields := map[string]any{}
			for col, ct := range map[string]string{"email": m.Email, "first_name": m.FirstName, "last_name": m.LastName} {
				out, changed, err := s.crypto.Reencrypt(ct)
				if err != nil {
					return s.decryptFailed(m.ID, col, err)
				}
				if changed {
					fields[col] = out
				}
			}
			if len(fields) == 0 {
				continue
			}
			if err := s.repo.Update(ctx, m.ID, fields); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}
