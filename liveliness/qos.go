package liveliness

import (
	"errors"
	"math"
	"time"
)

// Infinite means the lease or announcement never expires.
const Infinite = time.Duration(math.MaxInt64)

var ErrNegativeDuration = errors.New("liveliness duration must not be negative")
var ErrAnnouncementTooLong = errors.New("announcement period must be shorter than lease duration")

// Offered is the liveliness QoS a writer advertises.
type Offered struct {
	Kind               Kind
	LeaseDuration      time.Duration
	AnnouncementPeriod time.Duration
}

// Requested is the liveliness QoS a reader demands.
type Requested struct {
	Kind          Kind
	LeaseDuration time.Duration
}

// Validate reports the configuration errors that must fail endpoint init.
func (o Offered) Validate() error {
	if o.LeaseDuration < 0 || o.AnnouncementPeriod < 0 {
		return ErrNegativeDuration
	}
	if o.LeaseDuration != Infinite && o.AnnouncementPeriod >= o.LeaseDuration {
		return ErrAnnouncementTooLong
	}
	return nil
}

// Validate reports the configuration errors that must fail endpoint init.
func (r Requested) Validate() error {
	if r.LeaseDuration < 0 {
		return ErrNegativeDuration
	}
	return nil
}

// Compatible decides whether an offered writer QoS satisfies a requested
// reader QoS. Equality in both dimensions is compatible.
func Compatible(offered Offered, requested Requested) bool {
	if offered.Kind < requested.Kind {
		return false
	}
	return offered.LeaseDuration <= requested.LeaseDuration
}
