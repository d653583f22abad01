package damage

import (
	"fmt"
	"strings"
)

// Classifier recognizes damage from a foreign subsystem that delivers two hit
// events for a single logical action.
type Classifier interface {
	DoubleFire(src Source) (bool, error)
}

// ClassifierFunc adapts a plain function.
type ClassifierFunc func(src Source) (bool, error)

func (f ClassifierFunc) DoubleFire(src Source) (bool, error) { return f(src) }

// Nop never matches. Installed when the foreign subsystem is absent.
type Nop struct{}

func (Nop) DoubleFire(Source) (bool, error) { return false, nil }

// NamespaceClassifier matches types such as "tacz:bullet" or
// "tacz:bullet_ignore_armor".
type NamespaceClassifier struct {
	Namespace  string
	PathPrefix string
}

// NewGunClassifier returns the classifier for the gun mod's bullet damage.
func NewGunClassifier() NamespaceClassifier {
	return NamespaceClassifier{Namespace: "tacz", PathPrefix: "bullet"}
}

func (c NamespaceClassifier) DoubleFire(src Source) (bool, error) {
	if src.Type == "" {
		return false, nil
	}
	if !strings.Contains(src.Type, ":") {
		return false, nil
	}
	return src.Namespace() == c.Namespace && strings.HasPrefix(src.Path(), c.PathPrefix), nil
}

// ArmorPiercing reports whether a matched source is the second, armor-ignoring hit.
func (c NamespaceClassifier) ArmorPiercing(src Source) bool {
	ok, _ := c.DoubleFire(src)
	return ok && strings.Contains(src.Path(), "ignore_armor")
}

// SafeDoubleFire calls c and treats any error or panic as "not matched".
// The returned error describes what was swallowed, for logging only.
func SafeDoubleFire(c Classifier, src Source) (matched bool, swallowed error) {
	if c == nil {
		return false, nil
	}
	defer func() {
		if r := recover(); r != nil {
			matched = false
			swallowed = fmt.Errorf("classifier panic: %v", r)
		}
	}()
	ok, err := c.DoubleFire(src)
	if err != nil {
		return false, fmt.Errorf("classifier: %w", err)
	}
	return ok, nil
}
