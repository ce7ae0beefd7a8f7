package scans

import (
    "context"
    "net/url"
    "time"

    "github.com/google/uuid"
    "golang.org/x/net/publicsuffix"

    "github.com/aaj441/wcag-ai-platform-sub007/internal/domain"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/ports"
)

// Service accepts scan submissions and tracks them.
type Service struct {
    scans ports.ScanRepository
    jobs  ports.JobRepository
}

func New(scans ports.ScanRepository, jobs ports.JobRepository) *Service {
    return &Service{scans: scans, jobs: jobs}
}

// Submit creates a scan for a target. externalScanner marks scans whose
// findings arrive through the ingestion endpoint; those are queued for
// scoring when the crawl-completion signal lands rather than at submission.
func (s *Service) Submit(ctx context.Context, rawurl string, priority domain.Priority, externalScanner bool) (*domain.Scan, error) {
    u, err := url.Parse(rawurl)
    if err != nil || u.Scheme == "" || u.Hostname() == "" {
        return nil, &domain.ValidationError{Field: "targetUrl", Reason: "must be an absolute URL"}
    }
    registrable, err := publicsuffix.EffectiveTLDPlusOne(u.Hostname())
    if err != nil {
        registrable = u.Hostname()
    }
    if priority == "" {
        priority = domain.PriorityStandard
    }
    switch priority {
    case domain.PriorityStandard, domain.PriorityUrgent, domain.PriorityCritical:
    default:
        return nil, &domain.ValidationError{Field: "priority", Reason: "must be STANDARD, URGENT or CRITICAL"}
    }

    scan := &domain.Scan{
        ID:                uuid.NewString(),
        TargetURL:         rawurl,
        RegistrableDomain: registrable,
        Priority:          priority,
        State:             domain.ScanPending,
        CreatedAt:         time.Now().UTC(),
    }
    if err := s.scans.CreateScan(ctx, scan); err != nil {
        return nil, err
    }
    if !externalScanner {
        if _, err := s.jobs.EnqueueJob(ctx, scan.ID); err != nil {
            return nil, err
        }
    }
    return scan, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Scan, error) {
    return s.scans.GetScan(ctx, id)
}
