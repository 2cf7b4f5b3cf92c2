// Package authz описывает роли и контекст авторизации, который явно передаётся в каждую операцию.
package authz

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ignatzorin/bounty-escrow/internal/pkg/apperror"
)

type Role string

const (
	RoleAdmin             Role = "ADMIN"
	RolePauser            Role = "PAUSER"
	RoleKeeper            Role = "KEEPER"
	RoleModerator         Role = "MODERATOR"
	RoleSubmissionManager Role = "SUBMISSION_MANAGER"
	RoleDisputeResolver   Role = "DISPUTE_RESOLVER"
	RoleBountyRegistry    Role = "BOUNTY_REGISTRY"
	RoleAIService         Role = "AI_SERVICE"
	RoleArbitrator        Role = "ARBITRATOR"
	RoleTreasury          Role = "TREASURY"
)

// AllRoles перечисляет роли в стабильном порядке.
var AllRoles = []Role{
	RoleAdmin, RolePauser, RoleKeeper, RoleModerator, RoleSubmissionManager,
	RoleDisputeResolver, RoleBountyRegistry, RoleAIService, RoleArbitrator, RoleTreasury,
}

func (r Role) IsValid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

// Context это права вызывающего, вычисленные из текущих выдач ролей внутри транзакции.
type Context struct {
	Address common.Address
	roles   map[Role]struct{}
}

// NewContext собирает контекст для адреса с заданными ролями.
func NewContext(addr common.Address, roles ...Role) Context {
	set := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return Context{Address: addr, roles: set}
}

func (c Context) Has(role Role) bool {
	_, ok := c.roles[role]
	return ok
}

// Roles возвращает роли контекста в порядке AllRoles.
func (c Context) Roles() []Role {
	out := make([]Role, 0, len(c.roles))
	for _, r := range AllRoles {
		if c.Has(r) {
			out = append(out, r)
		}
	}
	return out
}

// Require проверяет, что у вызывающего есть хотя бы одна из ролей.
func (c Context) Require(roles ...Role) error {
	for _, r := range roles {
		if c.Has(r) {
			return nil
		}
	}
	return apperror.Reject(apperror.KindUnauthorizedCaller, "у вызывающего нет нужной роли").
		With("caller", c.Address.Hex()).
		With("required", roles)
}

// Grants это выдачи ролей. Хранятся в глобальном состоянии реестра.
type Grants map[Role]map[common.Address]bool

func (g Grants) Grant(role Role, addr common.Address) {
	if g[role] == nil {
		g[role] = make(map[common.Address]bool)
	}
	g[role][addr] = true
}

func (g Grants) Revoke(role Role, addr common.Address) {
	delete(g[role], addr)
	if len(g[role]) == 0 {
		delete(g, role)
	}
}

func (g Grants) Holds(role Role, addr common.Address) bool {
	return g[role][addr]
}

// Resolve строит контекст авторизации для адреса.
func (g Grants) Resolve(addr common.Address) Context {
	var roles []Role
	for _, r := range AllRoles {
		if g.Holds(r, addr) {
			roles = append(roles, r)
		}
	}
	return NewContext(addr, roles...)
}

// Members возвращает держателей роли, отсортированные по адресу.
func (g Grants) Members(role Role) []common.Address {
	out := make([]common.Address, 0, len(g[role]))
	for addr := range g[role] {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

func (g Grants) Clone() Grants {
	out := make(Grants, len(g))
	for role, members := range g {
		copied := make(map[common.Address]bool, len(members))
		for addr, ok := range members {
			copied[addr] = ok
		}
		out[role] = copied
	}
	return out
}

// ComponentAddress выводит детерминированный адрес внутреннего компонента из его имени.
func ComponentAddress(name string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("bounty-escrow/component/" + name))[12:])
}
