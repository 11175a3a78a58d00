package types

import (
	"context"
	"testing"

	"github.com/medleyhq/medley/lib/db/dbtest"
	"github.com/medleyhq/medley/models"
)

func TestCollectStats(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()

	empty, err := CollectStats(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if empty.Users != 0 || empty.Revenue != 0 || empty.LastMovieSync != nil || len(empty.TopFavorites) != 0 {
		t.Errorf("empty stats = %+v", empty)
	}

	user := models.User{Username: "u", PasswordHash: "x"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatal(err)
	}
	movies := []models.Movie{{MovieID: 1, Title: "Up"}, {MovieID: 2, Title: "Heat"}}
	if err := db.Create(&movies).Error; err != nil {
		t.Fatal(err)
	}
	rows := []any{
		&models.Favorite{UserID: user.ID, MovieID: movies[1].ID},
		&models.Task{Title: "a", UserID: user.ID, IsCompleted: true},
		&models.Task{Title: "b", UserID: user.ID},
		&models.Order{UserID: user.ID, IsOrdered: true, RefundRequested: true},
		&models.Order{UserID: user.ID},
		&models.Payment{Amount: 12.5},
		&models.Payment{Amount: 7.5},
	}
	for _, r := range rows {
		if err := db.Create(r).Error; err != nil {
			t.Fatal(err)
		}
	}

	s, err := CollectStats(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if s.Users != 1 || s.Movies != 2 || s.Favorites != 1 || s.Tasks != 2 || s.CompletedTasks != 1 {
		t.Errorf("counts = %+v", s)
	}
	if s.OpenOrders != 1 || s.PlacedOrders != 1 || s.PendingRefunds != 1 || s.Revenue != 20 {
		t.Errorf("shop stats = %+v", s)
	}
	if s.LastMovieSync == nil {
		t.Error("missing last movie sync")
	}
	if len(s.TopFavorites) != 1 || s.TopFavorites[0].Title != "Heat" || s.TopFavorites[0].Count != 1 {
		t.Errorf("top favorites = %+v", s.TopFavorites)
	}
}
