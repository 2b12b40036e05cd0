package features

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/entrhq/tubeforge/pkg/signal"
)

const screenshotBinding = "__tubeforgeScreenshot"

// armHotkeyScript installs one capturing keydown listener. Re-running it on
// the same document is a no-op.
const armHotkeyScript = `(key) => {
  if (window.__tubeforgeHotkey) return;
  window.__tubeforgeHotkey = (e) => {
    if (e.altKey && e.key && e.key.toLowerCase() === key && window.__tubeforgeScreenshot) {
      e.preventDefault();
      window.__tubeforgeScreenshot();
    }
  };
  document.addEventListener('keydown', window.__tubeforgeHotkey, true);
}`

const disarmHotkeyScript = `() => {
  if (!window.__tubeforgeHotkey) return;
  document.removeEventListener('keydown', window.__tubeforgeHotkey, true);
  delete window.__tubeforgeHotkey;
}`

// screenshot saves the video frame as a PNG when the hotkey is pressed.
type screenshot struct {
	env      *Env
	selector string
	dir      string
	key      string

	armed bool
	bound bool
}

func newScreenshot(env *Env, selector, dir, key string) *screenshot {
	return &screenshot{env: env, selector: selector, dir: dir, key: key}
}

func (f *screenshot) Activate(ctx context.Context) error {
	if f.armed {
		return nil
	}
	if !f.bound {
		// Binding calls arrive on the browser's goroutine; hop onto the loop.
		err := f.env.Doc.Bind(ctx, screenshotBinding, func(...any) {
			f.env.Loop.Post(func() { f.onHotkey(context.Background()) })
		})
		if err != nil {
			return err
		}
		f.bound = true
	}

	// Full page loads drop the listener; navigation re-arms it.
	err := f.env.NavFinish.Subscribe(ctx, IDScreenshot, func(ctx context.Context, _ signal.NavigationEvent) error {
		_, err := f.env.Doc.Evaluate(ctx, armHotkeyScript, f.key)
		return err
	})
	if err != nil {
		return err
	}
	f.armed = true
	return nil
}

func (f *screenshot) Deactivate(ctx context.Context) error {
	if !f.armed {
		return nil
	}
	f.armed = false
	f.env.NavFinish.Unsubscribe(IDScreenshot)
	_, err := f.env.Doc.Evaluate(ctx, disarmHotkeyScript, nil)
	return err
}

func (f *screenshot) onHotkey(ctx context.Context) {
	if !f.armed {
		return
	}
	path, err := f.Capture(ctx)
	if err != nil {
		f.env.logger().Errorf("screenshot failed: %v", err)
		return
	}
	f.env.logger().Infof("screenshot saved to %s", path)
}

// Capture writes the current video frame to a new file and copies its path
// to the clipboard. A clipboard failure is logged; the file is kept.
func (f *screenshot) Capture(ctx context.Context) (string, error) {
	png, err := f.env.Doc.Screenshot(ctx, f.selector)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return "", fmt.Errorf("create screenshot dir: %w", err)
	}

	name := fmt.Sprintf("tubeforge-%s.png", f.env.now().Format("20060102-150405.000"))
	path := filepath.Join(f.dir, name)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}

	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if err := f.env.copyText(path); err != nil {
		f.env.logger().Warnf("copy screenshot path: %v", err)
	}
	return path, nil
}
