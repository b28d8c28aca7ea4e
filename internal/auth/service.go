package auth

import (
	"fmt"
	"log"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/bher20/meterledger/internal/storage"
)

// Roles understood by the default policy.
const (
	RoleAdmin  = "admin"
	RoleOwner  = "owner"
	RoleViewer = "viewer"
)

// Objects and actions checked by the API.
const (
	ObjReadings = "readings"
	ObjSettings = "settings"
	ObjStats    = "stats"
	ObjOwner    = "owner"

	ActRead   = "read"
	ActWrite  = "write"
	ActDelete = "delete"
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (r.obj == p.obj || p.obj == "*") && (r.act == p.act || p.act == "*")
`

// DefaultPolicies is seeded into an empty policy store.
var DefaultPolicies = [][]string{
	// Admin can do everything
	{RoleAdmin, "*", "*"},
	// Owners manage their own data
	{RoleOwner, ObjReadings, ActRead},
	{RoleOwner, ObjReadings, ActWrite},
	{RoleOwner, ObjSettings, ActRead},
	{RoleOwner, ObjSettings, ActWrite},
	{RoleOwner, ObjStats, ActRead},
	{RoleOwner, ObjOwner, ActDelete},
	// Viewer can only read
	{RoleViewer, ObjReadings, ActRead},
	{RoleViewer, ObjSettings, ActRead},
	{RoleViewer, ObjStats, ActRead},
}

// Service decides whether a role may perform an action on an object. Policy
// rules are persisted through the storage adapter.
type Service struct {
	enforcer *casbin.Enforcer
}

func NewService(s storage.Storage) (*Service, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, err
	}

	e, err := casbin.NewEnforcer(m, NewAdapter(s))
	if err != nil {
		return nil, fmt.Errorf("casbin enforcer: %w", err)
	}

	existing, err := e.GetPolicy()
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		log.Printf("auth: seeding %d default policies", len(DefaultPolicies))
		for _, p := range DefaultPolicies {
			if _, err := e.AddPolicy(p[0], p[1], p[2]); err != nil {
				return nil, fmt.Errorf("seed policy %v: %w", p, err)
			}
		}
	}

	return &Service{enforcer: e}, nil
}

func (s *Service) Enforce(sub, obj, act string) (bool, error) {
	return s.enforcer.Enforce(sub, obj, act)
}

// AddPolicy grants sub the action on obj and persists the rule.
func (s *Service) AddPolicy(sub, obj, act string) (bool, error) {
	return s.enforcer.AddPolicy(sub, obj, act)
}

// RemovePolicy revokes a rule previously granted.
func (s *Service) RemovePolicy(sub, obj, act string) (bool, error) {
	return s.enforcer.RemovePolicy(sub, obj, act)
}

// LoadPolicy reloads every rule from storage.
func (s *Service) LoadPolicy() error {
	return s.enforcer.LoadPolicy()
}
