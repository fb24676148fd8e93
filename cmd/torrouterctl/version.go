package main

import (
	"fmt"

	"github.com/torrouter/torrouter/internal/version"
)

// VersionCmd prints version info.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(version.String("torrouterctl"))
	return nil
}
