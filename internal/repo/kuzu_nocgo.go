//go:build !cgo

package repo

import "errors"

func openKuzu(string) (Repository, error) {
	return nil, errors.New("repo: kuzu backend requires a cgo build")
}
