package command

import (
	"os"
	"sort"
	"strings"
)

// Arg is one element of an invocation. A named arg renders as "--name"
// followed by its value when it has one; an unnamed arg renders as its value.
type Arg struct {
	Name     string
	Value    string
	HasValue bool
}

// Positional returns an unnamed argument.
func Positional(value string) Arg {
	return Arg{Value: value, HasValue: true}
}

// Flag returns a named argument with a value.
func Flag(name, value string) Arg {
	return Arg{Name: name, Value: value, HasValue: true}
}

// Switch returns a named boolean argument without a value.
func Switch(name string) Arg {
	return Arg{Name: name}
}

// Tokens renders the argument.
func (a Arg) Tokens() []string {
	tokens := make([]string, 0, 2)
	if a.Name != "" {
		tokens = append(tokens, "--"+a.Name)
	}
	if a.HasValue {
		tokens = append(tokens, a.Value)
	}
	return tokens
}

// Invocation is an ordered argument list plus an optional environment
// overlay. The first argument is the tool name.
type Invocation struct {
	Args []Arg
	Env  map[string]string
}

// New builds an invocation from args in order.
func New(args ...Arg) Invocation {
	return Invocation{Args: args}
}

// With returns a copy of the invocation with args appended.
func (i Invocation) With(args ...Arg) Invocation {
	merged := make([]Arg, 0, len(i.Args)+len(args))
	merged = append(merged, i.Args...)
	merged = append(merged, args...)
	return Invocation{Args: merged, Env: i.Env}
}

// WithEnv returns a copy of the invocation with one overlay variable set.
func (i Invocation) WithEnv(key, value string) Invocation {
	env := make(map[string]string, len(i.Env)+1)
	for k, v := range i.Env {
		env[k] = v
	}
	env[key] = value
	return Invocation{Args: i.Args, Env: env}
}

// Tokens renders every argument in construction order.
func (i Invocation) Tokens() []string {
	tokens := make([]string, 0, len(i.Args)*2)
	for _, arg := range i.Args {
		tokens = append(tokens, arg.Tokens()...)
	}
	return tokens
}

// Tool returns the first token, or "" for an empty invocation.
func (i Invocation) Tool() string {
	tokens := i.Tokens()
	if len(tokens) == 0 {
		return ""
	}
	return tokens[0]
}

// Subcommand returns the first positional argument after the tool, or "".
func (i Invocation) Subcommand() string {
	for n, arg := range i.Args {
		if n > 0 && arg.Name == "" && arg.HasValue {
			return arg.Value
		}
	}
	return ""
}

// String returns the command line as a single space-joined string.
func (i Invocation) String() string {
	return strings.Join(i.Tokens(), " ")
}

// Environ returns the process environment for the invocation: the ambient
// environment followed by the overlay, or nil when there is no overlay so the
// child inherits the ambient environment unchanged.
func (i Invocation) Environ() []string {
	if len(i.Env) == 0 {
		return nil
	}

	keys := make([]string, 0, len(i.Env))
	for k := range i.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// os/exec keeps the last value for duplicate keys.
	env := os.Environ()
	for _, k := range keys {
		env = append(env, k+"="+i.Env[k])
	}
	return env
}
