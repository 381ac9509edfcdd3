package devstore

import (
	"fmt"
	"slices"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"labdesk/internal/auth"
	"labdesk/internal/schema"
)

// Action is a record operation guarded by an access rule.
type Action string

const (
	ActionList   Action = "list"
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

var actions = []Action{ActionList, ActionView, ActionCreate, ActionUpdate, ActionDelete}

// RuleEnv is the environment an access rule is evaluated against. ID is the
// requested record id, empty for list and create.
type RuleEnv struct {
	Auth RuleAuth `expr:"auth"`
	ID   string   `expr:"id"`
}

type RuleAuth struct {
	ID            string `expr:"id"`
	Admin         bool   `expr:"admin"`
	Authenticated bool   `expr:"authenticated"`
}

// RuleSet maps a collection and action to a boolean expression.
type RuleSet map[string]map[Action]string

// DefaultRules makes the storefront catalog public to read, lets users see
// their own account, lets any signed-in user place a cart line, and reserves
// everything else for admins.
func DefaultRules() RuleSet {
	catalog := map[Action]string{
		ActionList:   "true",
		ActionView:   "true",
		ActionCreate: "auth.admin",
		ActionUpdate: "auth.admin",
		ActionDelete: "auth.admin",
	}
	return RuleSet{
		schema.Categories: catalog,
		schema.Tests:      catalog,
		schema.Pages:      catalog,
		schema.Team:       catalog,
		schema.Users: {
			ActionList:   "auth.admin",
			ActionView:   "auth.admin || (auth.authenticated && id == auth.id)",
			ActionCreate: "auth.admin",
			ActionUpdate: "auth.admin",
			ActionDelete: "auth.admin",
		},
		schema.Carts: {
			ActionList:   "auth.admin",
			ActionView:   "auth.admin",
			ActionCreate: "auth.authenticated",
			ActionUpdate: "auth.admin",
			ActionDelete: "auth.admin",
		},
	}
}

// Rules holds the compiled access rules.
type Rules struct {
	programs map[string]map[Action]*vm.Program
}

// CompileRules compiles every rule up front. A collection or action without a
// rule is denied.
func CompileRules(set RuleSet) (*Rules, error) {
	r := &Rules{programs: make(map[string]map[Action]*vm.Program, len(set))}
	for coll, byAction := range set {
		r.programs[coll] = make(map[Action]*vm.Program, len(byAction))
		for action, src := range byAction {
			if !slices.Contains(actions, action) {
				return nil, fmt.Errorf("collection %s: unknown action %q", coll, action)
			}
			prog, err := expr.Compile(src, expr.Env(RuleEnv{}), expr.AsBool())
			if err != nil {
				return nil, fmt.Errorf("compile %s %s rule: %w", coll, action, err)
			}
			r.programs[coll][action] = prog
		}
	}
	return r, nil
}

// Allow evaluates the rule for collection and action.
func (r *Rules) Allow(collection string, action Action, user *auth.User, id string) (bool, error) {
	prog := r.programs[collection][action]
	if prog == nil {
		return false, nil
	}
	env := RuleEnv{ID: id}
	if user != nil {
		env.Auth = RuleAuth{ID: user.ID, Admin: user.Admin, Authenticated: true}
	}
	out, err := expr.Run(prog, env)
	if err != nil {
		return false, fmt.Errorf("evaluate %s %s rule: %w", collection, action, err)
	}
	allowed, _ := out.(bool)
	return allowed, nil
}
