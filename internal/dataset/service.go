package dataset

import (
	"go.uber.org/zap"
)

// Service owns one listings file through load, clean and split.
// It is not safe for concurrent use.
type Service struct {
	path    string
	opts    LoadOptions
	cleaner *Cleaner
	logger  *zap.Logger

	table   *Table
	cleaned bool
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLoadOptions overrides DefaultLoadOptions.
func WithLoadOptions(o LoadOptions) ServiceOption {
	return func(s *Service) { s.opts = o }
}

// WithCleaner overrides the default EV schema cleaner.
func WithCleaner(c *Cleaner) ServiceOption {
	return func(s *Service) {
		if c != nil {
			s.cleaner = c
		}
	}
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService returns a Service for the CSV at path.
func NewService(path string, opts ...ServiceOption) *Service {
	s := &Service{path: path, opts: DefaultLoadOptions(), logger: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	if s.cleaner == nil {
		s.cleaner = NewCleaner(EVSchema(), WithLogger(s.logger))
	}
	return s
}

// Path returns the source file path.
func (s *Service) Path() string { return s.path }

// Target returns the target column name of the cleaner's schema.
func (s *Service) Target() string { return s.cleaner.Schema().Target }

// Load reads the source file, replacing any previously loaded table.
func (s *Service) Load() (*Table, error) {
	t, err := LoadCSV(s.path, s.opts)
	if err != nil {
		return nil, err
	}
	r, c := t.Shape()
	s.logger.Info("dataset loaded", zap.String("path", s.path), zap.Int("rows", r), zap.Int("columns", c))
	s.table = t
	s.cleaned = false
	return t, nil
}

// Raw returns a copy of the loaded table, loading it first if needed.
func (s *Service) Raw() (*Table, error) {
	if s.table != nil && !s.cleaned {
		return s.table.Clone(), nil
	}
	return LoadCSV(s.path, s.opts)
}

// Clean runs the cleaner over the loaded table, loading first when nothing is loaded.
// Subsequent calls return the memoized result.
func (s *Service) Clean() (*Table, error) {
	if s.cleaned {
		return s.table, nil
	}
	if s.table == nil {
		if _, err := s.Load(); err != nil {
			return nil, err
		}
	}
	t, err := s.cleaner.Clean(s.table)
	if err != nil {
		return nil, err
	}
	s.table = t
	s.cleaned = true
	return t, nil
}

// FeaturesAndTarget splits the cleaned table. It never cleans implicitly.
func (s *Service) FeaturesAndTarget() (*FeatureTable, *Series, error) {
	if !s.cleaned {
		return nil, nil, &StateError{Op: "features and target", Reason: "dataset has not been cleaned; call Clean first"}
	}
	return Split(s.table, s.Target())
}

// EDAFrame returns the cleaned table, loading and cleaning on first use.
func (s *Service) EDAFrame() (*Table, error) {
	return s.Clean()
}
