package firestore

import (
	"context"
	"errors"
	"strings"

	domain "github.com/tolkdesk/api/internal/domain"
	pfirestore "github.com/tolkdesk/api/internal/platform/firestore"
)

const customersCollection = "customers"

type customerDocument struct {
	Name         string `firestore:"name"`
	Email        string `firestore:"email"`
	Phone        string `firestore:"phone,omitempty"`
	Town         string `firestore:"town,omitempty"`
	ConsumerType string `firestore:"consumerType"`
}

// CustomerRepository reads booking-customer profiles from Firestore.
type CustomerRepository struct {
	base *pfirestore.BaseRepository[customerDocument]
}

// NewCustomerRepository constructs a Firestore-backed customer repository.
func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository: firestore provider is required")
	}
	return &CustomerRepository{
		base: pfirestore.NewBaseRepository[customerDocument](provider, customersCollection, nil, nil),
	}, nil
}

// FindByID loads a single customer profile.
func (r *CustomerRepository) FindByID(ctx context.Context, customerID string) (domain.Customer, error) {
	if r == nil || r.base == nil {
		return domain.Customer{}, errors.New("customer repository not initialised")
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.Customer{}, errors.New("customer repository: customer id is required")
	}
	doc, err := r.base.Get(ctx, customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	return domain.Customer{
		ID:           doc.ID,
		Name:         doc.Data.Name,
		Email:        doc.Data.Email,
		Phone:        doc.Data.Phone,
		Town:         doc.Data.Town,
		ConsumerType: domain.ConsumerType(doc.Data.ConsumerType),
	}, nil
}
