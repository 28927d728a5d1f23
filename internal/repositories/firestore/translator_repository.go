package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/tolkdesk/api/internal/domain"
	pfirestore "github.com/tolkdesk/api/internal/platform/firestore"
	"github.com/tolkdesk/api/internal/repositories"
)

const (
	translatorsCollection = "translators"
	blacklistsCollection  = "blacklists"
)

type translatorDocument struct {
	Name          string   `firestore:"name"`
	Email         string   `firestore:"email"`
	Phone         string   `firestore:"phone,omitempty"`
	Town          string   `firestore:"town,omitempty"`
	Gender        string   `firestore:"gender,omitempty"`
	Category      string   `firestore:"category"`
	Level         string   `firestore:"level"`
	Languages     []string `firestore:"languages"`
	MuteAll       bool     `firestore:"muteAll"`
	MuteEmergency bool     `firestore:"muteEmergency"`
	MuteNighttime bool     `firestore:"muteNighttime"`
	Suspended     bool     `firestore:"suspended"`
}

type blacklistDocument struct {
	CustomerID   string `firestore:"customerId"`
	TranslatorID string `firestore:"translatorId"`
}

// TranslatorRepository reads interpreter profiles from Firestore.
type TranslatorRepository struct {
	base       *pfirestore.BaseRepository[translatorDocument]
	blacklists *pfirestore.BaseRepository[blacklistDocument]
}

// NewTranslatorRepository constructs a Firestore-backed translator repository.
func NewTranslatorRepository(provider *pfirestore.Provider) (*TranslatorRepository, error) {
	if provider == nil {
		return nil, errors.New("translator repository: firestore provider is required")
	}
	return &TranslatorRepository{
		base:       pfirestore.NewBaseRepository[translatorDocument](provider, translatorsCollection, nil, nil),
		blacklists: pfirestore.NewBaseRepository[blacklistDocument](provider, blacklistsCollection, nil, nil),
	}, nil
}

// FindByID loads a single translator profile.
func (r *TranslatorRepository) FindByID(ctx context.Context, translatorID string) (domain.Translator, error) {
	if r == nil || r.base == nil {
		return domain.Translator{}, errors.New("translator repository not initialised")
	}
	translatorID = strings.TrimSpace(translatorID)
	if translatorID == "" {
		return domain.Translator{}, errors.New("translator repository: translator id is required")
	}
	doc, err := r.base.Get(ctx, translatorID)
	if err != nil {
		return domain.Translator{}, err
	}
	return decodeTranslatorDocument(doc.ID, doc.Data), nil
}

// FindByEmail resolves a translator by their registered email.
func (r *TranslatorRepository) FindByEmail(ctx context.Context, email string) (domain.Translator, error) {
	if r == nil || r.base == nil {
		return domain.Translator{}, errors.New("translator repository not initialised")
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.Translator{}, errors.New("translator repository: email is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("email", "==", email).Limit(1)
	})
	if err != nil {
		return domain.Translator{}, err
	}
	if len(docs) == 0 {
		return domain.Translator{}, pfirestore.NewNotFoundError("translators.find_by_email", fmt.Errorf("no translator registered for %s", email))
	}
	return decodeTranslatorDocument(docs[0].ID, docs[0].Data), nil
}

// Query returns translators of the given category speaking the given language.
// Suspension and finer requirements are filtered by the matching engine.
func (r *TranslatorRepository) Query(ctx context.Context, filter repositories.TranslatorFilter) ([]domain.Translator, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("translator repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.Category != "" {
			q = q.Where("category", "==", string(filter.Category))
		}
		if lang := strings.TrimSpace(filter.Language); lang != "" {
			q = q.Where("languages", "array-contains", lang)
		}
		return q
	})
	if err != nil {
		return nil, err
	}

	translators := make([]domain.Translator, 0, len(docs))
	for _, doc := range docs {
		translators = append(translators, decodeTranslatorDocument(doc.ID, doc.Data))
	}
	return translators, nil
}

// BlockedTranslatorIDs lists translators the customer has blacklisted.
func (r *TranslatorRepository) BlockedTranslatorIDs(ctx context.Context, customerID string) ([]string, error) {
	if r == nil || r.blacklists == nil {
		return nil, errors.New("translator repository not initialised")
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, errors.New("translator repository: customer id is required")
	}

	docs, err := r.blacklists.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("customerId", "==", customerID)
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		if id := strings.TrimSpace(doc.Data.TranslatorID); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// BlockingCustomerIDs lists customers that have blacklisted the translator.
func (r *TranslatorRepository) BlockingCustomerIDs(ctx context.Context, translatorID string) ([]string, error) {
	if r == nil || r.blacklists == nil {
		return nil, errors.New("translator repository not initialised")
	}
	translatorID = strings.TrimSpace(translatorID)
	if translatorID == "" {
		return nil, errors.New("translator repository: translator id is required")
	}

	docs, err := r.blacklists.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("translatorId", "==", translatorID)
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		if id := strings.TrimSpace(doc.Data.CustomerID); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func decodeTranslatorDocument(id string, doc translatorDocument) domain.Translator {
	return domain.Translator{
		ID:            id,
		Name:          doc.Name,
		Email:         doc.Email,
		Phone:         doc.Phone,
		Town:          doc.Town,
		Gender:        domain.Gender(doc.Gender),
		Category:      domain.TranslatorCategory(doc.Category),
		Level:         domain.TranslatorLevel(doc.Level),
		Languages:     doc.Languages,
		MuteAll:       doc.MuteAll,
		MuteEmergency: doc.MuteEmergency,
		MuteNighttime: doc.MuteNighttime,
		Suspended:     doc.Suspended,
	}
}
