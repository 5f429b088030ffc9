package platform_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sam-kirby/taskinator/internal/platform"
)

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	base := errors.New("boom")

	t.Run("permanent", func(t *testing.T) {
		t.Parallel()
		err := platform.Permanent("mute", base)
		if !platform.IsPermanent(err) {
			t.Error("expected permanent classification")
		}
		if !errors.Is(err, base) {
			t.Error("classified error must wrap its cause")
		}
	})

	t.Run("transient", func(t *testing.T) {
		t.Parallel()
		if platform.IsPermanent(platform.Transient("move", base)) {
			t.Error("transient error classified permanent")
		}
	})

	t.Run("wrapped classification survives", func(t *testing.T) {
		t.Parallel()
		wrapped := fmt.Errorf("dispatch: %w", platform.Permanent("mute", base))
		if !platform.IsPermanent(wrapped) {
			t.Error("classification lost through wrapping")
		}
	})

	t.Run("unclassified errors are treated transient", func(t *testing.T) {
		t.Parallel()
		if platform.IsPermanent(base) {
			t.Error("bare error classified permanent")
		}
		if platform.IsPermanent(nil) {
			t.Error("nil classified permanent")
		}
	})
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	err := platform.Transient("mute", errors.New("rate limited"))
	want := "platform: mute (transient): rate limited"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}
