package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/studex/apiserver/internal/storage"
	"github.com/studex/apiserver/internal/store"
	"github.com/studex/apiserver/types"
)

type pair struct{ user, project int }

// memDB is an in-memory stand-in for the relational store. RunInTx
// snapshots every table and restores the snapshot when fn fails.
type memDB struct {
	mu            sync.Mutex
	nextID        int
	users         map[int]types.User
	projects      map[int]types.Project
	files         map[int][]types.ProjectFile
	categories    map[int]types.Category
	sales         map[int]types.Sale
	notifications map[int]types.Notification
	cart          map[pair]time.Time
	favorites     map[pair]time.Time
	comments      map[int]types.Comment
	history       map[int]types.SearchHistoryEntry

	failNotifications bool
	failRemoveMany    bool
	txCount           int
}

func newMemDB() *memDB {
	return &memDB{
		users:         map[int]types.User{},
		projects:      map[int]types.Project{},
		files:         map[int][]types.ProjectFile{},
		categories:    map[int]types.Category{},
		sales:         map[int]types.Sale{},
		notifications: map[int]types.Notification{},
		cart:          map[pair]time.Time{},
		favorites:     map[pair]time.Time{},
		comments:      map[int]types.Comment{},
		history:       map[int]types.SearchHistoryEntry{},
	}
}

func (db *memDB) id() int {
	db.nextID++
	return db.nextID
}

type snapshot struct {
	users         map[int]types.User
	projects      map[int]types.Project
	sales         map[int]types.Sale
	notifications map[int]types.Notification
	cart          map[pair]time.Time
	favorites     map[pair]time.Time
	comments      map[int]types.Comment
	history       map[int]types.SearchHistoryEntry
}

func (db *memDB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	db.mu.Lock()
	db.txCount++
	snap := snapshot{
		users:         maps.Clone(db.users),
		projects:      maps.Clone(db.projects),
		sales:         maps.Clone(db.sales),
		notifications: maps.Clone(db.notifications),
		cart:          maps.Clone(db.cart),
		favorites:     maps.Clone(db.favorites),
		comments:      maps.Clone(db.comments),
		history:       maps.Clone(db.history),
	}
	db.mu.Unlock()

	if err := fn(ctx); err != nil {
		db.mu.Lock()
		db.users = snap.users
		db.projects = snap.projects
		db.sales = snap.sales
		db.notifications = snap.notifications
		db.cart = snap.cart
		db.favorites = snap.favorites
		db.comments = snap.comments
		db.history = snap.history
		db.mu.Unlock()
		return err
	}
	return nil
}

func (db *memDB) addUser(u types.User) types.User {
	db.mu.Lock()
	defer db.mu.Unlock()
	u.ID = db.id()
	u.IsActive = true
	if u.Role == "" {
		u.Role = types.RoleBuyer
	}
	db.users[u.ID] = u
	return u
}

func (db *memDB) addProject(p types.Project) types.Project {
	db.mu.Lock()
	defer db.mu.Unlock()
	p.ID = db.id()
	if p.Status == "" {
		p.Status = types.ProjectStatusPublished
	}
	if p.Title == "" {
		p.Title = fmt.Sprintf("Proyecto %d", p.ID)
	}
	p.CreatedAt = time.Now()
	db.projects[p.ID] = p
	return p
}

func (db *memDB) salesOf(buyerID int) []types.Sale {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []types.Sale
	for _, sale := range db.sales {
		if sale.BuyerID == buyerID {
			out = append(out, sale)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (db *memDB) notificationsOf(userID int) []types.Notification {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []types.Notification
	for _, n := range db.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// fakeSales mirrors the store's sale repository, including the partial
// unique index on completed purchases.
type fakeSales struct{ db *memDB }

func (r fakeSales) Get(_ context.Context, id int) (types.Sale, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	sale, ok := r.db.sales[id]
	if !ok {
		return types.Sale{}, store.ErrNotFound
	}
	return sale, nil
}

func (r fakeSales) Create(_ context.Context, sale types.Sale) (types.Sale, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.sales {
		if existing.SaleCode == sale.SaleCode {
			return types.Sale{}, uniqueViolation("sales_sale_code_key")
		}
	}
	sale.ID = r.db.id()
	sale.CreatedAt = time.Now()
	r.db.sales[sale.ID] = sale
	return sale, nil
}

func (r fakeSales) HasCompleted(_ context.Context, buyerID, projectID int) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, sale := range r.db.sales {
		if sale.BuyerID == buyerID && sale.ProjectID == projectID && sale.PaymentStatus == types.PaymentStatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (r fakeSales) list(keep func(types.Sale) bool) []types.Sale {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []types.Sale
	for _, sale := range r.db.sales {
		if keep(sale) {
			out = append(out, sale)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (r fakeSales) ListCompletedByBuyer(_ context.Context, buyerID int) ([]types.Sale, error) {
	return r.list(func(s types.Sale) bool {
		return s.BuyerID == buyerID && s.PaymentStatus == types.PaymentStatusCompleted
	}), nil
}

func (r fakeSales) ListBySeller(_ context.Context, sellerID int) ([]types.Sale, error) {
	return r.list(func(s types.Sale) bool { return s.SellerID == sellerID }), nil
}

func (r fakeSales) ListPending(_ context.Context, limit int) ([]types.Sale, error) {
	out := r.list(func(s types.Sale) bool { return s.PaymentStatus == types.PaymentStatusPending })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r fakeSales) BuyerStats(_ context.Context, buyerID int) (types.BuyerStats, error) {
	var stats types.BuyerStats
	for _, sale := range r.list(func(s types.Sale) bool { return s.BuyerID == buyerID }) {
		stats.TotalPurchases++
		switch sale.PaymentStatus {
		case types.PaymentStatusCompleted:
			stats.CompletedCount++
			stats.TotalSpent += sale.SalePrice
		case types.PaymentStatusPending:
			stats.PendingCount++
		case types.PaymentStatusFailed:
			stats.FailedCount++
		}
	}
	return stats, nil
}

func (r fakeSales) Complete(_ context.Context, id int, receiptCode, adminNote string, at time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	sale, ok := r.db.sales[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if sale.PaymentStatus != types.PaymentStatusPending {
		return false, nil
	}
	for _, other := range r.db.sales {
		if other.ID != id && other.BuyerID == sale.BuyerID && other.ProjectID == sale.ProjectID &&
			other.PaymentStatus == types.PaymentStatusCompleted {
			return false, uniqueViolation(completedPurchaseConstraint)
		}
	}
	sale.PaymentStatus = types.PaymentStatusCompleted
	sale.DeliveryStatus = types.DeliveryStatusCompleted
	sale.ReceiptCode = receiptCode
	sale.AdminNote = adminNote
	sale.PaymentDate = &at
	sale.DeliveryDate = &at
	r.db.sales[id] = sale
	return true, nil
}

func (r fakeSales) Fail(_ context.Context, id int, adminNote string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	sale, ok := r.db.sales[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if sale.PaymentStatus != types.PaymentStatusPending {
		return false, nil
	}
	sale.PaymentStatus = types.PaymentStatusFailed
	sale.AdminNote = adminNote
	r.db.sales[id] = sale
	return true, nil
}

func (r fakeSales) delete(id int) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	delete(r.db.sales, id)
}

type fakeProjects struct{ db *memDB }

func (r fakeProjects) Get(_ context.Context, id int) (types.Project, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	project, ok := r.db.projects[id]
	if !ok {
		return types.Project{}, store.ErrNotFound
	}
	return project, nil
}

func (r fakeProjects) Create(_ context.Context, project types.Project) (types.Project, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	project.ID = r.db.id()
	project.CreatedAt = time.Now()
	r.db.projects[project.ID] = project
	return project, nil
}

func (r fakeProjects) UpdateStatus(_ context.Context, id int, status types.ProjectStatus) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	project, ok := r.db.projects[id]
	if !ok {
		return store.ErrNotFound
	}
	project.Status = status
	r.db.projects[id] = project
	return nil
}

func (r fakeProjects) ListBySeller(_ context.Context, sellerID int) ([]types.Project, error) {
	return r.filter(func(p types.Project) bool { return p.SellerID == sellerID }, 0), nil
}

func (r fakeProjects) filter(keep func(types.Project) bool, limit int) []types.Project {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []types.Project
	for _, p := range r.db.projects {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r fakeProjects) bump(id int, apply func(*types.Project)) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	project, ok := r.db.projects[id]
	if !ok {
		return store.ErrNotFound
	}
	apply(&project)
	r.db.projects[id] = project
	return nil
}

func (r fakeProjects) IncrementDownloads(_ context.Context, id int) error {
	return r.bump(id, func(p *types.Project) { p.DownloadCount++ })
}

func (r fakeProjects) IncrementViews(_ context.Context, id int) error {
	return r.bump(id, func(p *types.Project) { p.ViewsCount++ })
}

func (r fakeProjects) AddFile(_ context.Context, file types.ProjectFile) (types.ProjectFile, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	file.ID = r.db.id()
	r.db.files[file.ProjectID] = append(r.db.files[file.ProjectID], file)
	return file, nil
}

func (r fakeProjects) ListFiles(_ context.Context, projectID int) ([]types.ProjectFile, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return slices.Clone(r.db.files[projectID]), nil
}

func (r fakeProjects) SetMainFile(_ context.Context, projectID, fileID int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	files := r.db.files[projectID]
	for i := range files {
		files[i].IsMain = files[i].ID == fileID
	}
	return nil
}

func (r fakeProjects) Search(_ context.Context, filter store.CatalogFilter) ([]types.Project, store.CatalogStats, error) {
	all := r.filter(func(p types.Project) bool { return p.Status.Purchasable() }, 0)
	stats := store.CatalogStats{Total: len(all)}
	if filter.Offset >= len(all) {
		return nil, stats, nil
	}
	all = all[filter.Offset:]
	if len(all) > filter.Limit {
		all = all[:filter.Limit]
	}
	return all, stats, nil
}

func (r fakeProjects) ListByStatus(_ context.Context, status types.ProjectStatus, limit int) ([]types.Project, error) {
	return r.filter(func(p types.Project) bool { return p.Status == status }, limit), nil
}

func (r fakeProjects) ListRecent(_ context.Context, limit int) ([]types.Project, error) {
	return r.filter(func(p types.Project) bool { return p.Status.Purchasable() }, limit), nil
}

func (r fakeProjects) TypeCounts(context.Context) ([]types.TypeCount, error) {
	return nil, nil
}

func (r fakeProjects) DemoteFeatured(context.Context) (int, error) {
	demoted := r.filter(func(p types.Project) bool { return p.Status == types.ProjectStatusFeatured }, 0)
	for _, p := range demoted {
		_ = r.bump(p.ID, func(p *types.Project) { p.Status = types.ProjectStatusPublished })
	}
	return len(demoted), nil
}

func (r fakeProjects) PromoteRecent(_ context.Context, limit int) (int, error) {
	promoted := r.filter(func(p types.Project) bool { return p.Status == types.ProjectStatusPublished }, limit)
	for _, p := range promoted {
		_ = r.bump(p.ID, func(p *types.Project) { p.Status = types.ProjectStatusFeatured })
	}
	return len(promoted), nil
}

type fakeCategories struct{ db *memDB }

func (r fakeCategories) ListActive(context.Context) ([]types.Category, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []types.Category
	for _, c := range r.db.categories {
		if c.IsActive {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r fakeCategories) Get(_ context.Context, id int) (types.Category, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.categories[id]
	if !ok {
		return types.Category{}, store.ErrNotFound
	}
	return c, nil
}

type fakeUsers struct{ db *memDB }

func (r fakeUsers) GetByID(_ context.Context, id int) (types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (r fakeUsers) find(match func(types.User) bool) (types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, u := range r.db.users {
		if match(u) {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r fakeUsers) GetByEmail(_ context.Context, email string) (types.User, error) {
	return r.find(func(u types.User) bool { return u.Email == email })
}

func (r fakeUsers) GetByGoogleID(_ context.Context, googleID string) (types.User, error) {
	return r.find(func(u types.User) bool { return googleID != "" && u.GoogleID == googleID })
}

func (r fakeUsers) Create(ctx context.Context, user types.User) (types.User, error) {
	if _, err := r.GetByEmail(ctx, user.Email); err == nil {
		return types.User{}, uniqueViolation("users_email_key")
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	user.ID = r.db.id()
	r.db.users[user.ID] = user
	return user, nil
}

func (r fakeUsers) Update(_ context.Context, user types.User) (types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	r.db.users[user.ID] = user
	return user, nil
}

func (r fakeUsers) IncrementTotalSales(_ context.Context, id int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.TotalSales++
	r.db.users[id] = u
	return nil
}

type fakeNotifications struct{ db *memDB }

func (r fakeNotifications) Create(_ context.Context, n types.Notification) (types.Notification, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.failNotifications {
		return types.Notification{}, errors.New("notifications table unavailable")
	}
	n.ID = r.db.id()
	n.CreatedAt = time.Now()
	r.db.notifications[n.ID] = n
	return n, nil
}

func (r fakeNotifications) ListRecent(_ context.Context, userID, limit int) ([]types.Notification, error) {
	out := r.db.notificationsOf(userID)
	slices.Reverse(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r fakeNotifications) CountUnread(_ context.Context, userID int) (int, error) {
	count := 0
	for _, n := range r.db.notificationsOf(userID) {
		if !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r fakeNotifications) MarkRead(_ context.Context, userID, id int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	n, ok := r.db.notifications[id]
	if !ok || n.UserID != userID {
		return store.ErrNotFound
	}
	n.IsRead = true
	r.db.notifications[id] = n
	return nil
}

func (r fakeNotifications) MarkAllRead(_ context.Context, userID int) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	updated := 0
	for id, n := range r.db.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			r.db.notifications[id] = n
			updated++
		}
	}
	return updated, nil
}

// fakeMembership backs both the cart and favorites.
type fakeMembership struct {
	db         *memDB
	table      func(*memDB) map[pair]time.Time
	constraint string
}

func fakeCart(db *memDB) fakeMembership {
	return fakeMembership{db: db, table: func(db *memDB) map[pair]time.Time { return db.cart }, constraint: "cart_items_pkey"}
}

func fakeFavorites(db *memDB) fakeMembership {
	return fakeMembership{db: db, table: func(db *memDB) map[pair]time.Time { return db.favorites }, constraint: "favorites_pkey"}
}

func (r fakeMembership) add(userID, projectID int) (time.Time, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	key := pair{userID, projectID}
	if _, ok := r.table(r.db)[key]; ok {
		return time.Time{}, uniqueViolation(r.constraint)
	}
	now := time.Now()
	r.table(r.db)[key] = now
	return now, nil
}

func (r fakeMembership) Remove(_ context.Context, userID, projectID int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	key := pair{userID, projectID}
	if _, ok := r.table(r.db)[key]; !ok {
		return store.ErrNotFound
	}
	delete(r.table(r.db), key)
	return nil
}

func (r fakeMembership) Exists(_ context.Context, userID, projectID int) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	_, ok := r.table(r.db)[pair{userID, projectID}]
	return ok, nil
}

func (r fakeMembership) members(userID int) []int {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var ids []int
	for key := range r.table(r.db) {
		if key.user == userID {
			ids = append(ids, key.project)
		}
	}
	sort.Ints(ids)
	return ids
}

type fakeCartRepo struct{ fakeMembership }

func (r fakeCartRepo) Add(_ context.Context, userID, projectID int) (types.CartItem, error) {
	at, err := r.add(userID, projectID)
	if err != nil {
		return types.CartItem{}, err
	}
	return types.CartItem{UserID: userID, ProjectID: projectID, AddedAt: at}, nil
}

func (r fakeCartRepo) List(ctx context.Context, userID int) ([]types.CartItem, error) {
	var items []types.CartItem
	for _, id := range r.members(userID) {
		project, err := fakeProjects{r.db}.Get(ctx, id)
		if err != nil {
			continue
		}
		items = append(items, types.CartItem{UserID: userID, ProjectID: id, Project: &project})
	}
	return items, nil
}

func (r fakeCartRepo) Clear(_ context.Context, userID int) (int, error) {
	ids := r.members(userID)
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, id := range ids {
		delete(r.db.cart, pair{userID, id})
	}
	return len(ids), nil
}

func (r fakeCartRepo) RemoveMany(_ context.Context, userID int, projectIDs []int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.failRemoveMany {
		return errors.New("cart table locked")
	}
	for _, id := range projectIDs {
		delete(r.db.cart, pair{userID, id})
	}
	return nil
}

type fakeFavoriteRepo struct{ fakeMembership }

func (r fakeFavoriteRepo) Add(_ context.Context, userID, projectID int) (types.Favorite, error) {
	at, err := r.add(userID, projectID)
	if err != nil {
		return types.Favorite{}, err
	}
	return types.Favorite{UserID: userID, ProjectID: projectID, AddedAt: at}, nil
}

func (r fakeFavoriteRepo) List(_ context.Context, userID int) ([]types.Favorite, error) {
	var out []types.Favorite
	for _, id := range r.members(userID) {
		out = append(out, types.Favorite{UserID: userID, ProjectID: id})
	}
	return out, nil
}

type fakeComments struct{ db *memDB }

func (r fakeComments) Create(_ context.Context, c types.Comment) (types.Comment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c.ID = r.db.id()
	c.CreatedAt = time.Now()
	r.db.comments[c.ID] = c
	return c, nil
}

func (r fakeComments) Get(_ context.Context, id int) (types.Comment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.comments[id]
	if !ok {
		return types.Comment{}, store.ErrNotFound
	}
	return c, nil
}

func (r fakeComments) ListByProject(_ context.Context, projectID int) ([]types.Comment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []types.Comment
	for _, c := range r.db.comments {
		if c.ProjectID == projectID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r fakeComments) Delete(_ context.Context, id int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.comments[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.db.comments, id)
	return nil
}

// fakeHistory orders entries by a logical clock so the oldest active entry
// is well defined even when timestamps collide.
type fakeHistory struct {
	db    *memDB
	clock *int
}

func newFakeHistory(db *memDB) fakeHistory {
	return fakeHistory{db: db, clock: new(int)}
}

func (r fakeHistory) tick() time.Time {
	*r.clock++
	return time.Unix(int64(*r.clock), 0)
}

func (r fakeHistory) Upsert(_ context.Context, userID int, term string) (types.SearchHistoryEntry, bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for id, e := range r.db.history {
		if e.UserID == userID && e.Term == term {
			e.IsActive = true
			e.SearchedAt = r.tick()
			r.db.history[id] = e
			return e, false, nil
		}
	}
	e := types.SearchHistoryEntry{ID: r.db.id(), UserID: userID, Term: term, IsActive: true, SearchedAt: r.tick()}
	r.db.history[e.ID] = e
	return e, true, nil
}

func (r fakeHistory) active(userID int) []types.SearchHistoryEntry {
	var out []types.SearchHistoryEntry
	for _, e := range r.db.history {
		if e.UserID == userID && e.IsActive {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SearchedAt.Before(out[j].SearchedAt) })
	return out
}

func (r fakeHistory) CountActive(_ context.Context, userID int) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return len(r.active(userID)), nil
}

func (r fakeHistory) DeactivateOldest(_ context.Context, userID, n int) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	entries := r.active(userID)
	if n > len(entries) {
		n = len(entries)
	}
	for _, e := range entries[:n] {
		e.IsActive = false
		r.db.history[e.ID] = e
	}
	return n, nil
}

func (r fakeHistory) ListActive(_ context.Context, userID, limit int) ([]types.SearchHistoryEntry, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	entries := r.active(userID)
	slices.Reverse(entries)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (r fakeHistory) Deactivate(_ context.Context, userID, id int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	e, ok := r.db.history[id]
	if !ok || e.UserID != userID || !e.IsActive {
		return store.ErrNotFound
	}
	e.IsActive = false
	r.db.history[id] = e
	return nil
}

func (r fakeHistory) DeactivateAll(_ context.Context, userID int) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	entries := r.active(userID)
	for _, e := range entries {
		e.IsActive = false
		r.db.history[e.ID] = e
	}
	return len(entries), nil
}

// fakePublisher records published jobs.
type fakePublisher struct {
	mu       sync.Mutex
	messages [][]byte
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, channel string, data []byte, _ map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.messages = append(p.messages, data)
	return fmt.Sprintf("%s-%d", channel, len(p.messages)), nil
}

type fakeMedia struct {
	uploads []string
	failOn  int
}

func (m *fakeMedia) Upload(_ context.Context, obj storage.Object) (string, error) {
	if m.failOn > 0 && len(m.uploads)+1 == m.failOn {
		return "", errors.New("media host unavailable")
	}
	if _, err := io.Copy(io.Discard, obj.Body); err != nil {
		return "", err
	}
	m.uploads = append(m.uploads, obj.Key)
	return "https://media.test/" + obj.Key, nil
}

type fakeFeaturedCache struct {
	projects    []types.Project
	cached      bool
	invalidated int
}

func (c *fakeFeaturedCache) GetFeatured(context.Context) ([]types.Project, bool, error) {
	return c.projects, c.cached, nil
}

func (c *fakeFeaturedCache) SetFeatured(_ context.Context, projects []types.Project) error {
	c.projects = projects
	c.cached = true
	return nil
}

func (c *fakeFeaturedCache) InvalidateFeatured(context.Context) error {
	c.projects = nil
	c.cached = false
	c.invalidated++
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture wires every service against one memDB.
type fixture struct {
	db        *memDB
	sales     fakeSales
	projects  fakeProjects
	users     fakeUsers
	jobs      *fakePublisher
	notifier  *NotificationService
	purchases *PurchaseService
	worker    *PaymentWorker
	now       time.Time
}

func newFixture() *fixture {
	db := newMemDB()
	f := &fixture{
		db:       db,
		sales:    fakeSales{db},
		projects: fakeProjects{db},
		users:    fakeUsers{db},
		jobs:     &fakePublisher{},
		now:      time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
	}
	f.notifier = NewNotificationService(fakeNotifications{db}, discardLogger())
	f.purchases = NewPurchaseService(
		db,
		f.sales,
		f.projects,
		fakeCartRepo{fakeCart(db)},
		f.users,
		f.notifier,
		f.jobs,
		PurchaseConfig{Simulation: true, CompletionDelay: 5 * time.Second},
		discardLogger(),
	)
	f.purchases.now = func() time.Time { return f.now }
	f.worker = NewPaymentWorker(db, f.sales, f.users, f.notifier, discardLogger())
	f.worker.now = func() time.Time { return f.now }
	return f
}

// uniqueViolation mirrors what the SQL repositories return for a 23505.
func uniqueViolation(constraint string) error {
	return store.ConflictOn(constraint, &pq.Error{Code: "23505", Constraint: constraint})
}
