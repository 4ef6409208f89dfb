// internal/device/guard.go
package device

import (
	"fmt"

	"k8s.io/klog/v2"
)

// Guard holds the enable state found before Acquire and puts it back on
// Release. It is the only thing that restores the input state.
type Guard struct {
	d        *Device
	prior    bool
	released bool
}

// Acquire records the current enable state and applies desired.
// On error nothing is held and Release must not be called.
func Acquire(d *Device, desired bool) (*Guard, error) {
	prior, err := d.IsEnabled()
	if err != nil {
		return nil, fmt.Errorf("enable guard: read prior state: %w", err)
	}

	if err := d.SetEnabled(desired); err != nil {
		// The write may have landed before the link failed.
		if rerr := d.SetEnabled(prior); rerr != nil {
			klog.ErrorS(rerr, "enable guard: restore after failed acquire", "prior", prior)
		}
		return nil, fmt.Errorf("enable guard: apply state: %w", err)
	}

	klog.V(2).InfoS("enable guard: acquired", "prior", prior, "desired", desired)
	return &Guard{d: d, prior: prior}, nil
}

// Prior is the enable state restored by Release.
func (g *Guard) Prior() bool { return g.prior }

// Release restores the prior state. Only the first call touches the
// device; later calls return nil.
func (g *Guard) Release() error {
	if g == nil || g.released {
		return nil
	}
	g.released = true

	if err := g.d.SetEnabled(g.prior); err != nil {
		return fmt.Errorf("enable guard: restore state %t: %w", g.prior, err)
	}
	klog.V(2).InfoS("enable guard: released", "restored", g.prior)
	return nil
}
