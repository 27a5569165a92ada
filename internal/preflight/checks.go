package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"earthgazer/internal/catalog"
	"earthgazer/internal/platform"
	"earthgazer/internal/services"
	"earthgazer/internal/storage"
	"earthgazer/internal/store"
)

const checkTimeout = 30 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckPlatforms verifies that every monitored platform has a definition.
func CheckPlatforms(reg *platform.Registry, monitored []string) Result {
	const name = "Platforms"
	selected, err := reg.Select(monitored)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	names := make([]string, 0, len(selected))
	for _, p := range selected {
		names = append(names, p.Name)
	}
	return Result{Name: name, Passed: true, Detail: strings.Join(names, ", ")}
}

// CheckDatabase verifies the repository answers queries.
func CheckDatabase(ctx context.Context, st *store.Store) Result {
	const name = "Database"
	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	counts, err := st.CaptureStatusCounts(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", st.Target(), err)}
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d captures)", st.Target(), total)}
}

// CheckDestination verifies the object store can list under base. An empty
// listing passes; the prefix is created on first upload.
func CheckDestination(ctx context.Context, name string, objects storage.ObjectStore, base string) Result {
	if strings.TrimSpace(base) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if _, err := objects.List(checkCtx, base); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%s)", base, summarizeError(err))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (reachable)", base)}
}

// CheckCatalog runs a trivial query to prove credentials and billing work.
func CheckCatalog(ctx context.Context, client catalog.Client) Result {
	const name = "Catalog"
	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if _, err := client.Query(checkCtx, catalog.Statement{Text: "SELECT 1 AS ok"}); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "query ok"}
}

// summarizeError produces a human-readable summary for remote check failures.
func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, services.ErrTimeout) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out (unreachable)"
	}
	return err.Error()
}
