package cli

import "fmt"

type notFoundError struct {
	kind string
	id   string
}

func (e notFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.kind, e.id)
}

func errNotFound(kind, id string) error {
	return notFoundError{kind: kind, id: id}
}

type missingFlagError struct {
	flags []string
}

func (e missingFlagError) Error() string {
	if len(e.flags) == 1 {
		return fmt.Sprintf("missing --%s", e.flags[0])
	}
	return fmt.Sprintf("missing --%s or --%s", e.flags[0], e.flags[1])
}

func errMissingFlag(flags ...string) error {
	return missingFlagError{flags: flags}
}
