// Package seed loads the demo catalogue: the activity tree, buildings and organizations.
package seed

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"example.com/directory/internal/domain"
)

// Writer is the store surface needed to load a catalogue.
type Writer interface {
	CreateNode(ctx context.Context, name string, parentID *int64) (*domain.NodeCreation, error)
	InsertBuilding(ctx context.Context, b domain.Building) (int64, error)
	InsertOrganization(ctx context.Context, org domain.Organization, buildingIDs, activityIDs []int64) (int64, error)
}

// ActivityDef places Name under Parent; an empty Parent is a root.
type ActivityDef struct {
	Parent string
	Name   string
}

// ActivityTree is the demo classification, parents listed before children.
var ActivityTree = []ActivityDef{
	{"", "Еда"},
	{"Еда", "Мясная продукция"},
	{"Еда", "Молочная продукция"},
	{"", "Автомобили"},
	{"Автомобили", "Грузовые"},
	{"Автомобили", "Легковые"},
	{"Легковые", "Запчасти"},
	{"Легковые", "Аксессуары"},
	{"", "Услуги"},
	{"Услуги", "Ремонт"},
	{"Услуги", "Доставка"},
	{"", "Торговля"},
	{"Торговля", "Оптовая"},
	{"Торговля", "Розничная"},
}

type city struct {
	country string
	region  string
	name    string
}

var cities = []city{
	{"Россия", "Новосибирская обл.", "Новосибирск"},
	{"Россия", "Новосибирская обл.", "Бердск"},
	{"Россия", "Новосибирская обл.", "Кольцово"},
	{"Россия", "", "Москва"},
	{"Россия", "", "Санкт-Петербург"},
}

var streets = []string{
	"Ленина", "Мира", "Советская", "Гагарина", "Победы",
	"Центральная", "Молодёжная", "Садовая", "Лесная", "Речная",
}

var companyBases = []string{
	"Рога и Копыта", "СтройИнвест", "Молоко Сибири", "АвтоМир",
	"СибирьТорг", "ТехСервис", "Северный ветер", "Альфа",
	"Бета Плюс", "Гамма", "Дельта Сервис", "Омега", "Агро",
	"ТрансЛогистик", "МясоПром", "ХлебДар", "Чистый дом",
}

var legalForms = []string{"ООО", "ООО", "АО", "ИП"}

// Summary reports what Load wrote.
type Summary struct {
	ActivityIDs     map[string]int64
	LeafIDs         []int64
	BuildingIDs     []int64
	OrganizationIDs []int64
}

// Options tunes Load.
type Options struct {
	Organizations int
	Rand          *rand.Rand
}

// Load writes the activity tree, buildings and organizations through w.
func Load(ctx context.Context, w Writer, opts Options) (*Summary, error) {
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(1))
	}
	if opts.Organizations <= 0 {
		opts.Organizations = 100
	}
	rng := opts.Rand

	summary := &Summary{ActivityIDs: make(map[string]int64)}
	hasChildren := make(map[string]bool)
	for _, def := range ActivityTree {
		var parentID *int64
		if def.Parent != "" {
			id, ok := summary.ActivityIDs[def.Parent]
			if !ok {
				return nil, fmt.Errorf("seed: parent %q of %q not created", def.Parent, def.Name)
			}
			parentID = &id
			hasChildren[def.Parent] = true
		}
		created, err := w.CreateNode(ctx, def.Name, parentID)
		if err != nil {
			return nil, fmt.Errorf("seed: create activity %q: %w", def.Name, err)
		}
		summary.ActivityIDs[def.Name] = created.Activity.ID
	}
	for _, def := range ActivityTree {
		if !hasChildren[def.Name] {
			summary.LeafIDs = append(summary.LeafIDs, summary.ActivityIDs[def.Name])
		}
	}

	for _, b := range Buildings(rng) {
		id, err := w.InsertBuilding(ctx, b)
		if err != nil {
			return nil, fmt.Errorf("seed: insert building: %w", err)
		}
		summary.BuildingIDs = append(summary.BuildingIDs, id)
	}

	names := CompanyNames(rng, opts.Organizations)
	for _, name := range names {
		org := domain.Organization{Name: name, Phone: Phone(rng)}
		buildings := sample(rng, summary.BuildingIDs, 1+rng.Intn(3))
		activities := sample(rng, summary.LeafIDs, 1+rng.Intn(3))
		id, err := w.InsertOrganization(ctx, org, buildings, activities)
		if err != nil {
			return nil, fmt.Errorf("seed: insert organization %q: %w", name, err)
		}
		summary.OrganizationIDs = append(summary.OrganizationIDs, id)
	}
	return summary, nil
}

// Buildings generates ten addresses per city with coordinates around Novosibirsk.
func Buildings(rng *rand.Rand) []domain.Building {
	out := make([]domain.Building, 0, len(cities)*len(streets))
	for _, c := range cities {
		for _, street := range streets {
			lat := round6(55.0 + rng.Float64()*2)
			lon := round6(82.0 + rng.Float64()*4)
			b := domain.Building{
				Country:     c.country,
				City:        c.name,
				Street:      "ул. " + street,
				HouseNumber: fmt.Sprintf("%d/%d", 1+rng.Intn(120), 1+rng.Intn(5)),
				Latitude:    &lat,
				Longitude:   &lon,
			}
			if c.region != "" {
				region := c.region
				b.Region = &region
			}
			out = append(out, b)
		}
	}
	return out
}

// CompanyNames returns count names such as `ООО "Альфа"`; later names carry a numeric suffix.
func CompanyNames(rng *rand.Rand, count int) []string {
	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		base := companyBases[rng.Intn(len(companyBases))]
		form := legalForms[rng.Intn(len(legalForms))]
		if i < len(companyBases)*2 {
			out = append(out, fmt.Sprintf("%s %q", form, base))
		} else {
			out = append(out, fmt.Sprintf("%s %q %d", form, base, i+1))
		}
	}
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// Phone formats a number as 8-XXX-XX-XX.
func Phone(rng *rand.Rand) string {
	return fmt.Sprintf("8-%d-%d-%d", 100+rng.Intn(900), 10+rng.Intn(90), 10+rng.Intn(90))
}

func sample(rng *rand.Rand, ids []int64, n int) []int64 {
	if n > len(ids) {
		n = len(ids)
	}
	out := make([]int64, 0, n)
	for _, i := range rng.Perm(len(ids))[:n] {
		out = append(out, ids[i])
	}
	return out
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
