package shop

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/medleyhq/medley/lib/db"
	"github.com/medleyhq/medley/lib/pagination"
	"github.com/medleyhq/medley/models"
	"gorm.io/gorm"
)

// NewItem is the input for adding a product to the catalogue.
type NewItem struct {
	Title         string   `json:"title" validate:"required,max=100"`
	Price         float64  `json:"price" validate:"gte=0"`
	DiscountPrice *float64 `json:"discount_price" validate:"omitempty,gte=0"`
	Description   string   `json:"description"`
	Category      string   `json:"category" validate:"oneof=M W"`
	Label         string   `json:"label" validate:"omitempty,oneof=P S D"`
	Image         string   `json:"image"`
}

// CreateItem stores an available item under a unique slug derived from
// its title.
func (s *Service) CreateItem(ctx context.Context, in NewItem) (*models.Item, error) {
	item := &models.Item{
		Title:         in.Title,
		Price:         in.Price,
		DiscountPrice: in.DiscountPrice,
		Description:   in.Description,
		Available:     true,
		Category:      in.Category,
		Label:         in.Label,
		Image:         in.Image,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slug, err := uniqueSlug(tx, in.Title)
		if err != nil {
			return err
		}
		item.Slug = slug
		return tx.Create(item).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}
	return item, nil
}

func byID(q *gorm.DB) *gorm.DB { return q.Order("id") }

// Home lists best sellers then big discounts.
func (s *Service) Home(ctx context.Context, page int) (pagination.Page[models.Item], error) {
	base := s.db.WithContext(ctx).Model(&models.Item{}).
		Where("label IN ?", []string{models.LabelPrimary, models.LabelDanger})
	return pagination.Query[models.Item](base, page, HomePageSize, func(q *gorm.DB) *gorm.DB {
		return q.Order(fmt.Sprintf("CASE WHEN label = '%s' THEN 0 ELSE 1 END", models.LabelPrimary)).Order("id")
	})
}

// Category lists available items of one category.
func (s *Service) Category(ctx context.Context, category string, page int) (pagination.Page[models.Item], error) {
	base := s.db.WithContext(ctx).Model(&models.Item{}).
		Where("category = ? AND available = ?", category, true)
	return pagination.Query[models.Item](base, page, CategoryPageSize, byID)
}

func (s *Service) AllProducts(ctx context.Context, page int) (pagination.Page[models.Item], error) {
	return pagination.Query[models.Item](s.db.WithContext(ctx).Model(&models.Item{}), page, AllPageSize, byID)
}

// Search lists available items whose title or description contains q.
// An empty query matches nothing.
func (s *Service) Search(ctx context.Context, q string, page int) (pagination.Page[models.Item], error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return pagination.Slice([]models.Item(nil), 1, SearchPageSize), nil
	}
	titleCond, pattern := db.ContainsCI("title", q)
	descCond, _ := db.ContainsCI("description", q)
	base := s.db.WithContext(ctx).Model(&models.Item{}).
		Where("available = ?", true).
		Where("("+titleCond+" OR "+descCond+")", pattern, pattern)
	return pagination.Query[models.Item](base, page, SearchPageSize, byID)
}

// Suggestion is one entry of the search-as-you-type dropdown.
type Suggestion struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Suggest lists available items whose title contains q.
func (s *Service) Suggest(ctx context.Context, q string) ([]Suggestion, error) {
	results := []Suggestion{}
	if q == "" {
		return results, nil
	}
	cond, pattern := db.ContainsCI("title", q)
	var items []models.Item
	if err := s.db.WithContext(ctx).Where("available = ?", true).Where(cond, pattern).Order("id").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to search items: %w", err)
	}
	for _, it := range items {
		results = append(results, Suggestion{Name: it.Title, URL: it.URL()})
	}
	return results, nil
}

func (s *Service) ItemBySlug(ctx context.Context, slug string) (*models.Item, error) {
	var item models.Item
	if err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to load item: %w", err)
	}
	return &item, nil
}

// StarCount is the number and share of reviews with one rating.
type StarCount struct {
	Stars      int
	Count      int64
	Percentage string
}

// ReviewStats summarises an item's reviews for the star widget.
type ReviewStats struct {
	Average    float64
	Count      int64
	FullStars  int
	HalfStar   bool
	EmptyStars int
	// Breakdown runs from five stars down to one.
	Breakdown []StarCount
}

// NewReviewStats derives the star widget from per-rating counts.
func NewReviewStats(counts map[int]int64) ReviewStats {
	var st ReviewStats
	var sum int64
	for rating, n := range counts {
		st.Count += n
		sum += int64(rating) * n
	}
	if st.Count > 0 {
		st.Average = float64(sum) / float64(st.Count)
	}

	st.FullStars = int(math.Floor(st.Average))
	st.HalfStar = st.Average-float64(st.FullStars) >= 0.5
	st.EmptyStars = 5 - st.FullStars
	if st.HalfStar {
		st.EmptyStars--
	}

	for stars := 5; stars >= 1; stars-- {
		n := counts[stars]
		pct := 0.0
		if st.Count > 0 {
			pct = float64(n) / float64(st.Count) * 100
		}
		st.Breakdown = append(st.Breakdown, StarCount{Stars: stars, Count: n, Percentage: fmt.Sprintf("%.0f%%", pct)})
	}
	return st
}

// ItemDetail is everything the product page shows.
type ItemDetail struct {
	Item    models.Item
	Stats   ReviewStats
	Reviews pagination.Page[models.Review]
	InCart  bool
}

// Detail loads an item with its review summary, one page of reviews
// (newest first) and whether userID has it in the active cart. userID 0
// is an anonymous visitor.
func (s *Service) Detail(ctx context.Context, slug string, userID uint, reviewPage int) (*ItemDetail, error) {
	item, err := s.ItemBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	d := &ItemDetail{Item: *item}

	var rows []struct {
		Rating int
		N      int64
	}
	if err := s.db.WithContext(ctx).Model(&models.Review{}).
		Select("rating, COUNT(*) AS n").
		Where("item_id = ?", item.ID).
		Group("rating").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count reviews: %w", err)
	}
	counts := make(map[int]int64, len(rows))
	for _, r := range rows {
		counts[r.Rating] = r.N
	}
	d.Stats = NewReviewStats(counts)

	base := s.db.WithContext(ctx).Model(&models.Review{}).Where("item_id = ?", item.ID)
	d.Reviews, err = pagination.Query[models.Review](base, reviewPage, ReviewPageSize, func(q *gorm.DB) *gorm.DB {
		return q.Preload("User").Order("created_at DESC").Order("id DESC")
	})
	if err != nil {
		return nil, err
	}

	if userID != 0 {
		var n int64
		if err := s.db.WithContext(ctx).Model(&models.OrderItem{}).
			Joins("JOIN orders ON orders.id = order_items.order_id AND orders.deleted_at IS NULL").
			Where("orders.user_id = ? AND orders.is_ordered = ? AND order_items.item_id = ?", userID, false, item.ID).
			Count(&n).Error; err != nil {
			return nil, fmt.Errorf("failed to check cart: %w", err)
		}
		d.InCart = n > 0
	}
	return d, nil
}

// ReviewInput is the review form.
type ReviewInput struct {
	Rating  int    `form:"rating" validate:"required,min=1,max=5"`
	Comment string `form:"comment" validate:"required,max=500"`
}

// AddReview records a review of the item by userID. The input must
// already be validated.
func (s *Service) AddReview(ctx context.Context, slug string, userID uint, in ReviewInput) (*models.Review, error) {
	item, err := s.ItemBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	review := &models.Review{ItemID: item.ID, UserID: userID, Rating: in.Rating, Comment: in.Comment}
	if err := s.db.WithContext(ctx).Create(review).Error; err != nil {
		return nil, fmt.Errorf("failed to save review: %w", err)
	}
	return review, nil
}
