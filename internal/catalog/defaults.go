package catalog

import "github.com/abgdnv/storefront/internal/money"

// defaultProducts is the built-in product list used when no catalog file is configured.
var defaultProducts = []Product{
	{ID: 1, Title: `Laptop Ultraligera 14"`, UnitPrice: money.MustParse("2599.00"), Stock: 5, Image: "images/product1.jpg", Description: `14" FHD, 8GB RAM, 256GB SSD`, Category: "laptops"},
	{ID: 2, Title: "Auriculares Inalámbricos", UnitPrice: money.MustParse("249.90"), Stock: 12, Image: "images/product2.jpg", Description: "Cancelación de ruido, 30h batería", Category: "audio"},
	{ID: 3, Title: "Teclado Mecánico RGB", UnitPrice: money.MustParse("199.50"), Stock: 8, Image: "images/product3.jpg", Description: "Switches azules, conexión USB-C", Category: "perifericos"},
	{ID: 4, Title: "Smartwatch Deportivo", UnitPrice: money.MustParse("499.00"), Stock: 10, Image: "images/product4.jpg", Description: "GPS integrado, pulsómetro", Category: "accesorios"},
	{ID: 5, Title: `Monitor 27" 144Hz`, UnitPrice: money.MustParse("1199.00"), Stock: 4, Image: "images/product5.jpg", Description: "IPS, 1ms, FreeSync", Category: "perifericos"},
	{ID: 6, Title: "SSD NVMe 1TB", UnitPrice: money.MustParse("399.00"), Stock: 18, Image: "images/product6.jpg", Description: "Lectura 3500MB/s", Category: "almacenamiento"},
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New(defaultProducts)
	if err != nil {
		panic(err)
	}
	return c
}
