package email

import "fmt"

// BuildLowStockBody renders the low-stock alert email body
func BuildLowStockBody(resourceID, name string, available, threshold int) string {
	return fmt.Sprintf(`<html>
<body style="font-family: sans-serif;">
  <h2>Low stock warning</h2>
  <p><strong>%s</strong> (%s) is running low.</p>
  <table border="0" cellpadding="4">
    <tr><td>Available</td><td><strong>%d</strong></td></tr>
    <tr><td>Threshold</td><td>%d</td></tr>
  </table>
  <p>Restock or adjust the threshold to stop these alerts.</p>
</body>
</html>`, name, resourceID, available, threshold)
}
