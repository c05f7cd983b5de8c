package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/skylinesee/reeQute/entity"
	"github.com/skylinesee/reeQute/lib/clock"
)

// Memory is the process-local Registry. Codes and grants are guarded by
// separate locks; every check-then-act sequence runs under its lock.
type Memory struct {
	clock   clock.Clock
	codeTTL time.Duration

	codesMu sync.Mutex
	codes   map[string]entity.PendingCode

	grantsMu   sync.Mutex
	grants     map[string]entity.Grant
	generation uint64
}

// NewMemory returns an empty registry. codeTTL of zero keeps codes until
// they are redeemed or revoked.
func NewMemory(clk clock.Clock, codeTTL time.Duration) *Memory {
	if clk == nil {
		clk = clock.Real()
	}
	return &Memory{
		clock:   clk,
		codeTTL: codeTTL,
		codes:   make(map[string]entity.PendingCode),
		grants:  make(map[string]entity.Grant),
	}
}

func (m *Memory) PutCode(handle, code string) entity.PendingCode {
	now := m.clock.Now()
	p := entity.PendingCode{
		Handle:    handle,
		Code:      code,
		CreatedAt: now,
	}
	if m.codeTTL > 0 {
		p.ExpiresAt = now.Add(m.codeTTL)
	}

	m.codesMu.Lock()
	defer m.codesMu.Unlock()
	m.codes[handle] = p
	return p
}

// pendingLocked returns the live code for handle, dropping it if expired.
func (m *Memory) pendingLocked(handle string) (entity.PendingCode, bool) {
	p, ok := m.codes[handle]
	if !ok {
		return p, false
	}
	if p.Expired(m.clock.Now()) {
		delete(m.codes, handle)
		return p, false
	}
	return p, true
}

func (m *Memory) TakeCode(handle string) (string, error) {
	m.codesMu.Lock()
	defer m.codesMu.Unlock()
	p, ok := m.pendingLocked(handle)
	if !ok {
		return "", ErrNotFound
	}
	delete(m.codes, handle)
	return p.Code, nil
}

func (m *Memory) Redeem(handle, submitted string) error {
	m.codesMu.Lock()
	defer m.codesMu.Unlock()
	p, ok := m.pendingLocked(handle)
	if !ok {
		return ErrNotFound
	}
	if p.Code != submitted {
		return ErrMismatch
	}
	delete(m.codes, handle)
	return nil
}

func (m *Memory) Codes() []entity.PendingCode {
	now := m.clock.Now()
	m.codesMu.Lock()
	list := make([]entity.PendingCode, 0, len(m.codes))
	for _, p := range m.codes {
		if !p.Expired(now) {
			list = append(list, p)
		}
	}
	m.codesMu.Unlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

func (m *Memory) GrantTempAccess(userID, handle string, minutes int) (entity.Grant, error) {
	if minutes <= 0 {
		return entity.Grant{}, ErrInvalidDuration
	}
	expiry := m.clock.Now().Add(time.Duration(minutes) * time.Minute)

	m.grantsMu.Lock()
	defer m.grantsMu.Unlock()
	m.generation++
	g := entity.Grant{
		UserID:     userID,
		Handle:     handle,
		Expiry:     expiry,
		Generation: m.generation,
	}
	m.grants[userID] = g
	return g, nil
}

func (m *Memory) CheckTempAccess(userID string) (entity.Grant, error) {
	m.grantsMu.Lock()
	defer m.grantsMu.Unlock()
	g, ok := m.grants[userID]
	if !ok {
		return g, ErrNotFound
	}
	if !g.Active(m.clock.Now()) {
		delete(m.grants, userID)
		return g, ErrExpired
	}
	return g, nil
}

func (m *Memory) ExpireGrant(userID string, generation uint64) bool {
	m.grantsMu.Lock()
	defer m.grantsMu.Unlock()
	g, ok := m.grants[userID]
	if !ok || g.Generation != generation || g.Active(m.clock.Now()) {
		return false
	}
	delete(m.grants, userID)
	return true
}

func (m *Memory) Grants() []entity.Grant {
	now := m.clock.Now()
	m.grantsMu.Lock()
	list := make([]entity.Grant, 0, len(m.grants))
	for _, g := range m.grants {
		if g.Active(now) {
			list = append(list, g)
		}
	}
	m.grantsMu.Unlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].Expiry.Before(list[j].Expiry)
	})
	return list
}

func (m *Memory) Revoke(userID, handle string) Revoked {
	var r Revoked

	if userID != "" {
		m.grantsMu.Lock()
		if _, ok := m.grants[userID]; ok {
			delete(m.grants, userID)
			r.Grant = true
		}
		m.grantsMu.Unlock()
	}

	h := entity.ParseHandle(handle)
	m.codesMu.Lock()
	for key := range m.codes {
		if key == handle || h.SameName(key) {
			delete(m.codes, key)
			r.Codes++
		}
	}
	m.codesMu.Unlock()

	return r
}

func (m *Memory) ClearAll() (codes, grants int) {
	m.codesMu.Lock()
	codes = len(m.codes)
	m.codes = make(map[string]entity.PendingCode)
	m.codesMu.Unlock()

	m.grantsMu.Lock()
	grants = len(m.grants)
	m.grants = make(map[string]entity.Grant)
	m.grantsMu.Unlock()
	return codes, grants
}

func (m *Memory) Sweep() (codes, grants int) {
	now := m.clock.Now()

	m.codesMu.Lock()
	for key, p := range m.codes {
		if p.Expired(now) {
			delete(m.codes, key)
			codes++
		}
	}
	m.codesMu.Unlock()

	m.grantsMu.Lock()
	for id, g := range m.grants {
		if !g.Active(now) {
			delete(m.grants, id)
			grants++
		}
	}
	m.grantsMu.Unlock()
	return codes, grants
}
