package pipeline

import "strings"

// Remedy is a corrective action proposed for a failed phase's output. An
// empty Command means the category is recognized but has no automatic fix.
type Remedy struct {
	// Pattern names the matched category
	Pattern string

	// Command is the single remedy command to run, empty when none exists
	Command string

	// Fatal marks categories that no fix can recover (credential denials)
	Fatal bool
}

// Classifier inspects the captured output of a failed phase and proposes a
// remedy. A nil result is a first-class outcome meaning no pattern matched;
// classification has no side effects and is idempotent.
type Classifier interface {
	Classify(output string) *Remedy
}

// rule is one entry in the ordered pattern table. It matches when any of its
// signals appears in the output.
type rule struct {
	name    string
	signals []string
	command string
	fatal   bool
}

// RuleClassifier is an ordered substring-match classifier. Rules are
// consulted most-specific-first; the first match wins.
type RuleClassifier struct {
	rules []rule
}

// NewRuleClassifier creates a classifier with the default remedy table for
// TypeScript CDKTF projects.
func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{
		rules: []rule{
			{
				name: "credential denial",
				signals: []string{
					"accessdenied",
					"access denied",
					"unauthorized",
					"invalid credentials",
					"credential",
					"expiredtoken",
					"status code: 401",
					"status code: 403",
				},
				command: "",
				fatal:   true,
			},
			{
				name: "resource conflict",
				signals: []string{
					"already exists",
					"alreadyexists",
					"entityalreadyexists",
					"resource conflict",
				},
				command: "cdktf destroy --auto-approve",
			},
			{
				// Must precede the generic unresolved-module rule: missing
				// bindings also surface as "Cannot find module '.gen/...'".
				name: "missing provider bindings",
				signals: []string{
					"'.gen",
					"\".gen",
					"provider bindings",
					"run cdktf get",
				},
				command: "cdktf get",
			},
			{
				name: "lockfile inconsistency",
				signals: []string{
					"package-lock.json",
					"lock file",
					"eintegrity",
					"npm ci can only install",
				},
				command: "npm install --package-lock-only",
			},
			{
				name: "unresolved module",
				signals: []string{
					"cannot find module",
					"module_not_found",
					"modulenotfounderror",
					"could not resolve",
				},
				command: "npm install",
			},
			{
				name: "formatting violation",
				signals: []string{
					"prettier",
					"eslint",
					"code style issues",
					"not formatted",
				},
				command: "npm run format",
			},
		},
	}
}

// Classify returns the remedy for the first matching rule, or nil when no
// pattern matches.
func (c *RuleClassifier) Classify(output string) *Remedy {
	lowered := strings.ToLower(output)

	for _, r := range c.rules {
		for _, signal := range r.signals {
			if strings.Contains(lowered, signal) {
				return &Remedy{
					Pattern: r.name,
					Command: r.command,
					Fatal:   r.fatal,
				}
			}
		}
	}

	return nil
}
