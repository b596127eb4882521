// Package cart — локальная корзина одной клиентской сессии.
//
// Корзина живёт только в памяти клиента и никогда не разделяется между сессиями,
// поэтому синхронизации внутри нет: все вызовы идут из одного цикла событий клиента.
package cart

import "github.com/vladislavdragonenkov/barflow/internal/domain"

// Line — позиция корзины. Qty всегда >= 1.
type Line struct {
	Item domain.MenuItem
	Qty  int32
}

// ExtensionMinor возвращает стоимость строки в минимальных единицах.
func (l Line) ExtensionMinor() int64 {
	return int64(l.Qty) * l.Item.PriceMinor
}

// Cart агрегирует позиции; каждая позиция меню встречается не более одного раза.
type Cart struct {
	lines []Line
}

// New создаёт пустую корзину.
func New() *Cart {
	return &Cart{}
}

// Add увеличивает количество позиции на 1 или добавляет её в конец.
func (c *Cart) Add(item domain.MenuItem) {
	if i := c.index(item.ID); i >= 0 {
		c.lines[i].Qty++
		return
	}
	c.lines = append(c.lines, Line{Item: item, Qty: 1})
}

// Remove уменьшает количество на 1; при единице удаляет строку.
// Для отсутствующей позиции ничего не делает.
func (c *Cart) Remove(itemID string) {
	i := c.index(itemID)
	if i < 0 {
		return
	}
	if c.lines[i].Qty > 1 {
		c.lines[i].Qty--
		return
	}
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
}

// Total — сумма qty * price по всем строкам, целочисленная.
func (c *Cart) Total() int64 {
	var total int64
	for _, line := range c.lines {
		total += line.ExtensionMinor()
	}
	return total
}

// Quantity возвращает количество позиции в корзине (0, если её нет).
func (c *Cart) Quantity(itemID string) int32 {
	if i := c.index(itemID); i >= 0 {
		return c.lines[i].Qty
	}
	return 0
}

// Count возвращает общее число единиц в корзине.
func (c *Cart) Count() int {
	var n int
	for _, line := range c.lines {
		n += int(line.Qty)
	}
	return n
}

// Empty сообщает, что корзина пуста.
func (c *Cart) Empty() bool {
	return len(c.lines) == 0
}

// Lines возвращает копию строк в порядке добавления.
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// Clear очищает корзину. Вызывается только после успешной отправки заказа.
func (c *Cart) Clear() {
	c.lines = nil
}

func (c *Cart) index(itemID string) int {
	for i := range c.lines {
		if c.lines[i].Item.ID == itemID {
			return i
		}
	}
	return -1
}
