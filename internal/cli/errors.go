package cli

import "fmt"

type usageError struct {
	flag string
	msg  string
}

func (e usageError) Error() string {
	return fmt.Sprintf("--%s: %s", e.flag, e.msg)
}

func errUsage(flag, format string, args ...any) error {
	return usageError{flag: flag, msg: fmt.Sprintf(format, args...)}
}

type backendError struct {
	url string
	err error
}

func (e backendError) Error() string {
	return fmt.Sprintf("backend %s: %v", e.url, e.err)
}

func (e backendError) Unwrap() error { return e.err }

func errBackend(url string, err error) error {
	return backendError{url: url, err: err}
}
