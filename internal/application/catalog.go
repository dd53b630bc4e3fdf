package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/atvirokodosprendimai/sciencemap/internal/domain"
)

var tracer = otel.Tracer("github.com/atvirokodosprendimai/sciencemap/internal/application")

// MutationObserver receives one call per finished mutation; outcome is "ok"
// or the lower-cased error code.
type MutationObserver interface {
	ObserveMutation(kind domain.Kind, operation, outcome string)
}

type ElementResult struct {
	View        ElementView
	ETag        string
	NotModified bool
}

type CollectionResult struct {
	Views       []ElementView
	ETag        string
	NotModified bool
}

type RelationCommand struct {
	Owner        domain.Kind
	OwnerID      uint
	Collection   string
	Op           RelationOp
	RelatedID    uint
	Precondition Precondition
}

type CatalogService struct {
	repo       domain.CatalogRepository
	policy     AccessPolicy
	relations  RelationSynchronizer
	strategies map[domain.Kind]KindStrategy
	observer   MutationObserver
	log        zerolog.Logger
}

type CatalogOption func(*CatalogService)

func WithObserver(observer MutationObserver) CatalogOption {
	return func(s *CatalogService) { s.observer = observer }
}

func WithLogger(logger zerolog.Logger) CatalogOption {
	return func(s *CatalogService) { s.log = logger }
}

func WithStrategies(strategies map[domain.Kind]KindStrategy) CatalogOption {
	return func(s *CatalogService) { s.strategies = strategies }
}

func NewCatalogService(repo domain.CatalogRepository, opts ...CatalogOption) *CatalogService {
	s := &CatalogService{
		repo:       repo,
		strategies: DefaultStrategies(),
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CatalogService) Get(ctx context.Context, kind domain.Kind, id uint, ifNoneMatch Precondition) (ElementResult, error) {
	ctx, span := s.start(ctx, "catalog.get", kind, attribute.Int64("element.id", int64(id)))
	defer span.End()

	if _, err := s.strategy(kind); err != nil {
		return ElementResult{}, err
	}
	if !domain.ValidID(id) {
		return ElementResult{}, notFound(kind, nil)
	}
	view, err := s.loadView(ctx, s.repo, kind, id)
	if err != nil {
		return ElementResult{}, err
	}
	etag, err := Fingerprint(view)
	if err != nil {
		return ElementResult{}, err
	}
	return ElementResult{View: view, ETag: etag, NotModified: ifNoneMatch.Matches(etag)}, nil
}

// List answers NotFound for an empty collection.
func (s *CatalogService) List(ctx context.Context, kind domain.Kind, query domain.ElementQuery, ifNoneMatch Precondition) (CollectionResult, error) {
	ctx, span := s.start(ctx, "catalog.list", kind)
	defer span.End()

	if _, err := s.strategy(kind); err != nil {
		return CollectionResult{}, err
	}
	if query.Limit <= 0 {
		query.Limit = 500
	}
	if query.Limit > 5000 {
		query.Limit = 5000
	}
	elements, err := s.repo.ListElements(ctx, kind, query)
	if err != nil {
		return CollectionResult{}, fmt.Errorf("list %s: %w", kind, err)
	}
	if len(elements) == 0 {
		return CollectionResult{}, notFound(kind, nil)
	}
	return s.collection(ctx, s.repo, elements, ifNoneMatch)
}

func (s *CatalogService) ExistsByName(ctx context.Context, kind domain.Kind, name string) error {
	ctx, span := s.start(ctx, "catalog.exists_by_name", kind)
	defer span.End()

	if _, err := s.strategy(kind); err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" {
		return notFound(kind, nil)
	}
	if _, err := s.repo.FindElementByName(ctx, kind, name); err != nil {
		if errors.Is(err, domain.ErrElementNotFound) {
			return notFound(kind, err)
		}
		return fmt.Errorf("find %s by name: %w", kind, err)
	}
	return nil
}

func (s *CatalogService) ListRelated(ctx context.Context, kind domain.Kind, id uint, collection string, ifNoneMatch Precondition) (CollectionResult, error) {
	ctx, span := s.start(ctx, "catalog.list_related", kind, attribute.String("relation.collection", collection))
	defer span.End()

	side, ok := domain.SideFor(kind, collection)
	if !ok || !domain.ValidID(id) {
		return CollectionResult{}, notFound(kind, nil)
	}
	if _, err := s.findElement(ctx, s.repo, kind, id); err != nil {
		return CollectionResult{}, err
	}
	elements, err := s.repo.ListRelated(ctx, side, id)
	if err != nil {
		return CollectionResult{}, fmt.Errorf("list %s of %s %d: %w", collection, kind, id, err)
	}
	return s.collection(ctx, s.repo, elements, ifNoneMatch)
}

func (s *CatalogService) Create(ctx context.Context, principal *domain.Principal, kind domain.Kind, input map[string]any) (result ElementResult, err error) {
	ctx, span := s.start(ctx, "catalog.create", kind)
	defer func() { s.finish(span, kind, MutationCreate, err) }()

	strategy, err := s.strategy(kind)
	if err != nil {
		return ElementResult{}, err
	}
	if err := s.policy.Authorize(principal, MutationCreate); err != nil {
		return ElementResult{}, err
	}
	if missing := strategy.missingRequired(input); len(missing) > 0 {
		return ElementResult{}, domain.NewError(domain.CodeUnprocessable, "missing required fields: "+strings.Join(missing, ", "))
	}
	name, _, err := requestedName(input)
	if err != nil {
		return ElementResult{}, err
	}

	err = s.repo.WithinTx(ctx, func(tx domain.CatalogTx) error {
		if err := s.ensureNameFree(ctx, tx, kind, name, 0); err != nil {
			return err
		}
		element := domain.Element{Kind: kind}
		strategy.Apply(&element, input)
		created, err := tx.CreateElement(ctx, element)
		if err != nil {
			return duplicateOr(err, "create "+string(kind))
		}
		result, err = s.resultOf(ctx, tx, created)
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, principal, "element.create", created, "name="+created.Name)
	})
	return result, err
}

func (s *CatalogService) Update(ctx context.Context, principal *domain.Principal, kind domain.Kind, id uint, ifMatch Precondition, input map[string]any) (result ElementResult, err error) {
	ctx, span := s.start(ctx, "catalog.update", kind, attribute.Int64("element.id", int64(id)))
	defer func() { s.finish(span, kind, MutationUpdate, err) }()

	strategy, err := s.strategy(kind)
	if err != nil {
		return ElementResult{}, err
	}
	if err := s.policy.Authorize(principal, MutationUpdate); err != nil {
		return ElementResult{}, err
	}
	if !domain.ValidID(id) {
		return ElementResult{}, notFound(kind, nil)
	}

	err = s.repo.WithinTx(ctx, func(tx domain.CatalogTx) error {
		current, err := s.loadView(ctx, tx, kind, id)
		if err != nil {
			return err
		}
		etag, err := Fingerprint(current)
		if err != nil {
			return err
		}
		if err := requireFresh(ifMatch, etag); err != nil {
			return err
		}
		name, hasName, err := requestedName(input)
		if err != nil {
			return err
		}
		if hasName && name != current.Name {
			if err := s.ensureNameFree(ctx, tx, kind, name, id); err != nil {
				return err
			}
		}

		element := current.Element
		strategy.Apply(&element, input)
		saved, err := tx.SaveElement(ctx, element)
		if err != nil {
			return duplicateOr(err, "save "+string(kind))
		}
		result, err = s.resultOf(ctx, tx, saved)
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, principal, "element.update", saved, "etag="+result.ETag)
	})
	return result, err
}

// Delete strips every link that mentions the element before removing it.
func (s *CatalogService) Delete(ctx context.Context, principal *domain.Principal, kind domain.Kind, id uint, ifMatch Precondition) (err error) {
	ctx, span := s.start(ctx, "catalog.delete", kind, attribute.Int64("element.id", int64(id)))
	defer func() { s.finish(span, kind, MutationDelete, err) }()

	if _, err := s.strategy(kind); err != nil {
		return err
	}
	if err := s.policy.Authorize(principal, MutationDelete); err != nil {
		return err
	}
	if !domain.ValidID(id) {
		return notFound(kind, nil)
	}

	return s.repo.WithinTx(ctx, func(tx domain.CatalogTx) error {
		current, err := s.loadView(ctx, tx, kind, id)
		if err != nil {
			return err
		}
		etag, err := Fingerprint(current)
		if err != nil {
			return err
		}
		if err := checkFresh(ifMatch, etag); err != nil {
			return err
		}
		removed, err := tx.UnlinkAll(ctx, kind, id)
		if err != nil {
			return fmt.Errorf("unlink %s %d: %w", kind, id, err)
		}
		if err := tx.DeleteElement(ctx, kind, id); err != nil {
			if errors.Is(err, domain.ErrElementNotFound) {
				return notFound(kind, err)
			}
			return fmt.Errorf("delete %s %d: %w", kind, id, err)
		}
		return s.audit(ctx, tx, principal, "element.delete", current.Element, fmt.Sprintf("links=%d", removed))
	})
}

func (s *CatalogService) ApplyRelation(ctx context.Context, principal *domain.Principal, cmd RelationCommand) (result ElementResult, err error) {
	ctx, span := s.start(ctx, "catalog.relation."+string(cmd.Op), cmd.Owner,
		attribute.Int64("element.id", int64(cmd.OwnerID)),
		attribute.String("relation.collection", cmd.Collection),
		attribute.Int64("relation.element_id", int64(cmd.RelatedID)),
	)
	defer func() { s.finish(span, cmd.Owner, MutationRelation, err) }()

	if err := s.policy.Authorize(principal, MutationRelation); err != nil {
		return ElementResult{}, err
	}
	side, ok := domain.SideFor(cmd.Owner, cmd.Collection)
	if !ok || !domain.ValidID(cmd.OwnerID) {
		return ElementResult{}, notFound(cmd.Owner, nil)
	}

	err = s.repo.WithinTx(ctx, func(tx domain.CatalogTx) error {
		owner, err := s.loadView(ctx, tx, cmd.Owner, cmd.OwnerID)
		if err != nil {
			return err
		}
		etag, err := Fingerprint(owner)
		if err != nil {
			return err
		}
		if err := checkFresh(cmd.Precondition, etag); err != nil {
			return err
		}
		changed, err := s.relations.Apply(ctx, tx, side, cmd.Op, cmd.OwnerID, cmd.RelatedID)
		if err != nil {
			return err
		}
		result, err = s.resultOf(ctx, tx, owner.Element)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		action := "relation.add"
		if cmd.Op == RelationRemove {
			action = "relation.remove"
		}
		return s.audit(ctx, tx, principal, action, owner.Element, fmt.Sprintf("%s=%d", cmd.Collection, cmd.RelatedID))
	})
	return result, err
}

func (s *CatalogService) strategy(kind domain.Kind) (KindStrategy, error) {
	strategy, ok := s.strategies[kind]
	if !ok {
		return KindStrategy{}, domain.NewError(domain.CodeNotFound, fmt.Sprintf("unknown element kind %q", kind))
	}
	return strategy, nil
}

func (s *CatalogService) findElement(ctx context.Context, reader domain.CatalogReader, kind domain.Kind, id uint) (domain.Element, error) {
	element, err := reader.FindElement(ctx, kind, id)
	if err != nil {
		if errors.Is(err, domain.ErrElementNotFound) {
			return domain.Element{}, notFound(kind, err)
		}
		return domain.Element{}, fmt.Errorf("load %s %d: %w", kind, id, err)
	}
	return element, nil
}

func (s *CatalogService) loadView(ctx context.Context, reader domain.CatalogReader, kind domain.Kind, id uint) (ElementView, error) {
	element, err := s.findElement(ctx, reader, kind, id)
	if err != nil {
		return ElementView{}, err
	}
	return s.viewOf(ctx, reader, element)
}

func (s *CatalogService) viewOf(ctx context.Context, reader domain.CatalogReader, element domain.Element) (ElementView, error) {
	view := ElementView{Element: element, Related: map[string][]uint{}}
	for _, side := range domain.SidesOf(element.Kind) {
		ids, err := reader.RelatedIDs(ctx, side, element.ID)
		if err != nil {
			return ElementView{}, fmt.Errorf("load %s of %s %d: %w", side.Collection, element.Kind, element.ID, err)
		}
		view.Related[side.Collection] = ids
	}
	return view, nil
}

func (s *CatalogService) resultOf(ctx context.Context, reader domain.CatalogReader, element domain.Element) (ElementResult, error) {
	view, err := s.loadView(ctx, reader, element.Kind, element.ID)
	if err != nil {
		return ElementResult{}, err
	}
	etag, err := Fingerprint(view)
	if err != nil {
		return ElementResult{}, err
	}
	return ElementResult{View: view, ETag: etag}, nil
}

func (s *CatalogService) collection(ctx context.Context, reader domain.CatalogReader, elements []domain.Element, ifNoneMatch Precondition) (CollectionResult, error) {
	views := make([]ElementView, 0, len(elements))
	for _, element := range elements {
		view, err := s.viewOf(ctx, reader, element)
		if err != nil {
			return CollectionResult{}, err
		}
		views = append(views, view)
	}
	etag, err := CollectionFingerprint(views)
	if err != nil {
		return CollectionResult{}, err
	}
	return CollectionResult{Views: views, ETag: etag, NotModified: ifNoneMatch.Matches(etag)}, nil
}

// ensureNameFree allows an element to keep its own name.
func (s *CatalogService) ensureNameFree(ctx context.Context, tx domain.CatalogTx, kind domain.Kind, name string, selfID uint) error {
	existing, err := tx.FindElementByName(ctx, kind, name)
	if err == nil {
		if existing.ID == selfID {
			return nil
		}
		return domain.NewError(domain.CodeBadRequest, fmt.Sprintf("%s name already exists", kind))
	}
	if errors.Is(err, domain.ErrElementNotFound) {
		return nil
	}
	return fmt.Errorf("find %s by name: %w", kind, err)
}

func (s *CatalogService) audit(ctx context.Context, tx domain.CatalogTx, principal *domain.Principal, action string, element domain.Element, metadata string) error {
	var actor *uint
	if principal != nil && principal.UserID != 0 {
		id := principal.UserID
		actor = &id
	}
	if err := tx.CreateAuditLog(ctx, domain.AuditLog{
		ActorUserID: actor,
		Action:      action,
		TargetKind:  string(element.Kind),
		TargetID:    element.ID,
		Metadata:    metadata,
	}); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

func (s *CatalogService) start(ctx context.Context, name string, kind domain.Kind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("element.kind", string(kind)))
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (s *CatalogService) finish(span trace.Span, kind domain.Kind, class MutationClass, err error) {
	defer span.End()

	outcome := "ok"
	if err != nil {
		code := domain.CodeOf(err)
		outcome = strings.ToLower(string(code))
		span.SetAttributes(attribute.String("error.code", string(code)))
		if code == domain.CodeInternal {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.log.Error().Err(err).Str("kind", string(kind)).Str("operation", class.String()).Msg("mutation failed")
		} else {
			s.log.Debug().Str("kind", string(kind)).Str("operation", class.String()).Str("code", string(code)).Msg("mutation rolled back")
		}
	} else {
		s.log.Debug().Str("kind", string(kind)).Str("operation", class.String()).Msg("mutation committed")
	}
	if s.observer != nil {
		s.observer.ObserveMutation(kind, class.String(), outcome)
	}
}

func notFound(kind domain.Kind, cause error) error {
	return domain.WrapError(domain.CodeNotFound, fmt.Sprintf("%s not found", kind), cause)
}

func duplicateOr(err error, action string) error {
	if errors.Is(err, domain.ErrDuplicateName) {
		return domain.WrapError(domain.CodeBadRequest, "name already exists", err)
	}
	return fmt.Errorf("%s: %w", action, err)
}
