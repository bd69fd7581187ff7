package paginate

import "sync"

// View describes one page. StartIndex and EndIndex are 1-based inclusive display bounds and are
// both 0 when there are no items.
type View struct {
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	Offset      int  `json:"offset"`
	TotalItems  int  `json:"total_items"`
	TotalPages  int  `json:"total_pages"`
	HasPrevious bool `json:"has_previous"`
	HasNext     bool `json:"has_next"`
	IsFirstPage bool `json:"is_first_page"`
	IsLastPage  bool `json:"is_last_page"`
	StartIndex  int  `json:"start_index"`
	EndIndex    int  `json:"end_index"`
}

// Paginator does page math over a total item count. Only the current page is stateful.
type Paginator struct {
	mu           sync.Mutex
	itemsPerPage int
	totalItems   int
	totalPages   int
	current      int
}

// New returns a paginator on page 1 with no items. itemsPerPage below 1 is treated as 1.
func New(itemsPerPage int) *Paginator {
	if itemsPerPage < 1 {
		itemsPerPage = 1
	}
	return &Paginator{itemsPerPage: itemsPerPage, totalPages: 1, current: 1}
}

// SetTotal recomputes the page count (at least 1) and pulls the current page back in range.
func (p *Paginator) SetTotal(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if total < 0 {
		total = 0
	}
	p.totalItems = total
	p.totalPages = total / p.itemsPerPage
	if total%p.itemsPerPage != 0 {
		p.totalPages++
	}
	if p.totalPages < 1 {
		p.totalPages = 1
	}
	p.current = p.clamp(p.current)
}

func (p *Paginator) TotalPages() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalPages
}

// PageData returns the view for page, clamped into [1, TotalPages]. It does not move the current page.
func (p *Paginator) PageData(page int) View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view(p.clamp(page))
}

// GoTo moves to page (clamped) and returns its view.
func (p *Paginator) GoTo(page int) View {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = p.clamp(page)
	return p.view(p.current)
}

func (p *Paginator) Current() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view(p.current)
}

// NextPage advances one page. On the last page it returns false and stays put.
func (p *Paginator) NextPage() (View, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current >= p.totalPages {
		return View{}, false
	}
	p.current++
	return p.view(p.current), true
}

// PreviousPage goes back one page. On the first page it returns false and stays put.
func (p *Paginator) PreviousPage() (View, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current <= 1 {
		return View{}, false
	}
	p.current--
	return p.view(p.current), true
}

func (p *Paginator) clamp(page int) int {
	if page < 1 {
		return 1
	}
	if page > p.totalPages {
		return p.totalPages
	}
	return page
}

func (p *Paginator) view(page int) View {
	v := View{
		Page:        page,
		Limit:       p.itemsPerPage,
		Offset:      (page - 1) * p.itemsPerPage,
		TotalItems:  p.totalItems,
		TotalPages:  p.totalPages,
		HasPrevious: page > 1,
		HasNext:     page < p.totalPages,
		IsFirstPage: page == 1,
		IsLastPage:  page == p.totalPages,
	}
	if p.totalItems > 0 {
		v.StartIndex = v.Offset + 1
		v.EndIndex = v.Offset + min(p.itemsPerPage, p.totalItems-v.Offset)
	}
	return v
}
