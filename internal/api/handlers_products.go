package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/apperror"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/auth"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/catalog"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var errBodyRequired = apperror.Invalid("Request body required")

// handleListDatabases returns the caller's product databases
// GET /api/products/databases
func (s *Server) handleListDatabases(c *gin.Context) {
	dbs, err := s.catalog.ListDatabases(c.Request.Context(), auth.CurrentUser(c))
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, dbs)
}

// handleCreateDatabase creates a product database
// POST /api/products/databases
func (s *Server) handleCreateDatabase(c *gin.Context) {
	var req catalog.DatabaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperror.Respond(c, errBodyRequired)
		return
	}

	pdb, err := s.catalog.CreateDatabase(c.Request.Context(), auth.CurrentUser(c), req)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, pdb)
}

// PUT /api/products/databases/:id
func (s *Server) handleUpdateDatabase(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req catalog.DatabaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperror.Respond(c, errBodyRequired)
		return
	}

	pdb, err := s.catalog.UpdateDatabase(c.Request.Context(), auth.CurrentUser(c), id, req)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, pdb)
}

// DELETE /api/products/databases/:id
func (s *Server) handleDeleteDatabase(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.catalog.DeleteDatabase(c.Request.Context(), auth.CurrentUser(c), id); err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Database deleted"})
}

// GET /api/products/databases/:id/products
func (s *Server) handleListProducts(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	products, err := s.catalog.ListProducts(c.Request.Context(), auth.CurrentUser(c), id)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"products": products,
		"total":    len(products),
	})
}

// decodeProductInputs accepts a single product object or an array of them
func decodeProductInputs(body []byte) ([]catalog.ProductInput, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errBodyRequired
	}

	if body[0] == '[' {
		var inputs []catalog.ProductInput
		if err := json.Unmarshal(body, &inputs); err != nil {
			return nil, apperror.Invalid("Invalid request body")
		}
		return inputs, nil
	}

	var input catalog.ProductInput
	if err := json.Unmarshal(body, &input); err != nil {
		return nil, apperror.Invalid("Invalid request body")
	}
	return []catalog.ProductInput{input}, nil
}

// handleAddProducts adds one product or a batch; rows without a barcode are skipped
// POST /api/products/databases/:id/products
func (s *Server) handleAddProducts(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		apperror.Respond(c, errBodyRequired)
		return
	}
	inputs, err := decodeProductInputs(body)
	if err != nil {
		apperror.Respond(c, err)
		return
	}

	created, err := s.catalog.AddProducts(c.Request.Context(), auth.CurrentUser(c), id, inputs)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":  fmt.Sprintf("%d product(s) added", len(created)),
		"products": created,
	})
}

// PUT /api/products/databases/:id/products/:pid
func (s *Server) handleUpdateProduct(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	pid, ok := pathID(c, "pid")
	if !ok {
		return
	}

	var patch catalog.ProductPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		apperror.Respond(c, errBodyRequired)
		return
	}

	product, err := s.catalog.UpdateProduct(c.Request.Context(), auth.CurrentUser(c), id, pid, patch)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// DELETE /api/products/databases/:id/products/:pid
func (s *Server) handleDeleteProduct(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	pid, ok := pathID(c, "pid")
	if !ok {
		return
	}

	if err := s.catalog.DeleteProduct(c.Request.Context(), auth.CurrentUser(c), id, pid); err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted"})
}

// handleImportCSV loads products from a CSV URL or inline data
// POST /api/products/databases/:id/import-csv
func (s *Server) handleImportCSV(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req catalog.ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperror.Respond(c, errBodyRequired)
		return
	}

	imported, err := s.catalog.Import(c.Request.Context(), auth.CurrentUser(c), id, req)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("%d products imported", imported),
		"total":   imported,
	})
}

// handleExportCSV streams the catalog as semicolon-separated CSV
// GET /api/products/databases/:id/export-csv
func (s *Server) handleExportCSV(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	pdb, products, err := s.catalog.Export(c.Request.Context(), auth.CurrentUser(c), id)
	if err != nil {
		apperror.Respond(c, err)
		return
	}

	var buf bytes.Buffer
	if err := catalog.WriteCSV(&buf, products); err != nil {
		apperror.Respond(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", pdb.Name))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// GET /api/products/databases/:id/export-xlsx
func (s *Server) handleExportXLSX(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	pdb, products, err := s.catalog.Export(c.Request.Context(), auth.CurrentUser(c), id)
	if err != nil {
		apperror.Respond(c, err)
		return
	}

	var buf bytes.Buffer
	if err := catalog.WriteXLSX(&buf, products); err != nil {
		apperror.Respond(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.xlsx", pdb.Name))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
