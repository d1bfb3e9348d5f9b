package artifact

import (
	"context"
	"testing"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	t.Setenv("SEARCHCORE_ARTIFACT_DRIVER", "memory")
	store, err := Open(ctx)
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if store.Driver() != DriverMemory {
		t.Fatalf("expected memory driver, got %s", store.Driver())
	}

	t.Setenv("SEARCHCORE_ARTIFACT_DRIVER", "")
	t.Setenv("SEARCHCORE_ARTIFACT_FS_ROOT", t.TempDir())
	store, err = Open(ctx)
	if err != nil {
		t.Fatalf("open fs: %v", err)
	}
	if store.Driver() != DriverFilesystem {
		t.Fatalf("fs is the default driver, got %s", store.Driver())
	}

	t.Setenv("SEARCHCORE_ARTIFACT_DRIVER", "tape")
	if _, err := Open(ctx); err == nil {
		t.Fatalf("unknown driver must fail")
	}
}
