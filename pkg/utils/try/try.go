package try

// something have method `Fatal`.
//
// For example: *testing.T, *log.Logger
type Fataler interface {
	Fatal(...any)
}

// Wrapper of a pair of (T, error) .
//
// When error is nil, the Either is "ok" and T is valid.
// Otherwise it is "no good" and T should not be used.
type Either[T any] interface {
	// Get returns (value, nil) for ok, (zero-value, error) for no good.
	Get() (T, error)

	// OrFatal returns the value when ok.
	//
	// Otherwise, it calls ftl.Fatal(err).
	// If ftl has "Helper()" method (like *testing.T), it is called before Fatal.
	OrFatal(ftl Fataler) T

	// OrDefault returns the value when ok, d when no good.
	OrDefault(d T) T
}

func To[T any](ok T, ng error) Either[T] {
	if ng == nil {
		return tryOk[T]{value: ok}
	}
	return tryNg[T]{err: ng}
}

// Map converts the value when the Either is ok.
func Map[T any, R any](e Either[T], mapper func(T) R) Either[R] {
	val, err := e.Get()
	if err != nil {
		return tryNg[R]{err: err}
	}
	return tryOk[R]{value: mapper(val)}
}

type tryOk[T any] struct {
	value T
}

func (ok tryOk[T]) Get() (T, error) {
	return ok.value, nil
}

func (ok tryOk[T]) OrFatal(Fataler) T {
	return ok.value
}

func (ok tryOk[T]) OrDefault(T) T {
	return ok.value
}

type tryNg[T any] struct {
	err error
}

func (ng tryNg[T]) Get() (T, error) {
	return *new(T), ng.err
}

func (ng tryNg[T]) OrFatal(ftl Fataler) T {
	if hlp, ok := ftl.(interface{ Helper() }); ok {
		hlp.Helper()
	}
	ftl.Fatal(ng.err)
	return *new(T)
}

func (ng tryNg[T]) OrDefault(d T) T {
	return d
}
