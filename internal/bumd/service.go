package bumd

// Service is the orchestration layer that runs backups, restores and
// queries against a metadata store, a content store and a filesystem.
type Service struct {
	db       MetadataStore
	store    ContentStore
	fsys     Filesystem
	logger   Logger
	progress Progress
	clock    Clock
}

// NewService creates a new Service with the provided dependencies.
// A nil progress discards progress events.
func NewService(db MetadataStore, store ContentStore, fsys Filesystem, logger Logger, progress Progress, clock Clock) *Service {
	if progress == nil {
		progress = NopProgress{}
	}
	return &Service{
		db:       db,
		store:    store,
		fsys:     fsys,
		logger:   logger,
		progress: progress,
		clock:    clock,
	}
}
