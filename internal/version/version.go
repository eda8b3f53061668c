// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package version reports build information of the running binary.
package version

import (
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
)

// Info describes the running binary.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`   // vcs.revision
	BuiltAt string `json:"built_at,omitempty"` // vcs.time
	Go      string `json:"go"`
}

// String returns a human-readable multi-line description.
func (i Info) String() string {
	var sb strings.Builder
	sb.WriteString(i.Name + " " + i.Version + " (" + i.Go + ", " + runtime.GOOS + "/" + runtime.GOARCH + ")\n")
	if i.Commit != "" {
		sb.WriteString("commit " + i.Commit + "\n")
	}
	if i.BuiltAt != "" {
		sb.WriteString("built at " + i.BuiltAt + "\n")
	}
	return sb.String()
}

// used in tests
var readBuildInfo = debug.ReadBuildInfo

var info = sync.OnceValue(func() Info { return load(readBuildInfo) })

// Version returns build information of the current binary.
func Version() Info { return info() }

// CmdName returns the name of the current command.
func CmdName() string { return info().Name }

// UserAgent returns the User-Agent header value sent with every outgoing
// request.
func UserAgent() string { return userAgent(info()) }

func userAgent(i Info) string {
	ver := i.Version
	if ver == "devel" && i.Commit != "" {
		ver = i.Commit
	}
	return i.Name + "/" + ver + " (+https://astrophena.name/bleep-bloop)"
}

func load(read func() (*debug.BuildInfo, bool)) Info {
	i := Info{
		Name:    "chirp",
		Version: "devel",
		Go:      runtime.Version(),
	}

	bi, ok := read()
	if !ok {
		return i
	}
	if bi.Path != "" {
		i.Name = filepath.Base(bi.Path)
	}
	if v := bi.Main.Version; v != "" && v != "(devel)" {
		i.Version = v
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			i.Commit = s.Value
		case "vcs.time":
			i.BuiltAt = s.Value
		}
	}
	return i
}
