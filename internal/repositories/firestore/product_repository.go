package firestore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/back-orders/api/internal/domain"
	pfirestore "github.com/back-orders/api/internal/platform/firestore"
)

const productsCollection = "products"

type productDocument struct {
	ProductID int64     `firestore:"productId"`
	Name      string    `firestore:"name"`
	Price     int64     `firestore:"price"`
	Stock     int       `firestore:"stock"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// ProductRepository implements repositories.ProductRepository backed by Firestore.
type ProductRepository struct {
	provider *pfirestore.Provider
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{provider: provider}, nil
}

func (r *ProductRepository) docRef(ctx context.Context, productID int64) (*firestore.DocumentRef, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(productsCollection).Doc(strconv.FormatInt(productID, 10)), nil
}

// FindByID returns the product or a not-found repository error.
func (r *ProductRepository) FindByID(ctx context.Context, productID int64) (domain.Product, error) {
	ref, err := r.docRef(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}

	snap, err := pfirestore.GetDoc(ctx, ref)
	if err != nil {
		return domain.Product{}, pfirestore.WrapError("products.find", err)
	}

	var doc productDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Product{}, pfirestore.WrapError("products.find", err)
	}
	return domain.Product{
		ID:        doc.ProductID,
		Name:      doc.Name,
		Price:     doc.Price,
		Stock:     doc.Stock,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

// Save upserts the product document.
func (r *ProductRepository) Save(ctx context.Context, product domain.Product) error {
	ref, err := r.docRef(ctx, product.ID)
	if err != nil {
		return err
	}
	doc := productDocument{
		ProductID: product.ID,
		Name:      product.Name,
		Price:     product.Price,
		Stock:     product.Stock,
		UpdatedAt: product.UpdatedAt,
	}
	if err := pfirestore.SetDoc(ctx, ref, doc); err != nil {
		return pfirestore.WrapError("products.save", err)
	}
	return nil
}
