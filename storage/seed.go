package storage

import (
	"context"
	"fmt"
)

// SampleCustomers is the fixture loaded by SeedSampleData.
var SampleCustomers = []Customer{
	{Name: "Aarav Sharma", Address: "12 MG Road, Bengaluru, Karnataka", Email: "aarav.sharma@example.in", Phone: "9845012345", Credit: 125000.50, Status: StatusActive},
	{Name: "Priya Patel", Address: "45 CG Road, Ahmedabad, Gujarat", Email: "priya.patel@example.in", Phone: "9825098765", Credit: 87500.00, Status: StatusActive},
	{Name: "Rohan Gupta", Address: "7 Hazratganj, Lucknow, Uttar Pradesh", Email: "rohan.gupta@example.in", Phone: "9415023456", Credit: 45200.75, Status: StatusInactive},
	{Name: "Ananya Iyer", Address: "23 T Nagar, Chennai, Tamil Nadu", Email: "ananya.iyer@example.in", Phone: "9840034567", Credit: 210000.00, Status: StatusActive},
	{Name: "Vikram Singh", Address: "89 Civil Lines, Jaipur, Rajasthan", Email: "vikram.singh@example.in", Phone: "9829045678", Credit: 65000.25, Status: StatusActive},
	{Name: "Kavya Reddy", Address: "15 Banjara Hills, Hyderabad, Telangana", Email: "kavya.reddy@example.in", Phone: "9848056789", Credit: 158750.00, Status: StatusActive},
	{Name: "Arjun Nair", Address: "31 MG Road, Kochi, Kerala", Email: "arjun.nair@example.in", Phone: "9847067890", Credit: 33000.00, Status: StatusInactive},
	{Name: "Ishita Banerjee", Address: "56 Park Street, Kolkata, West Bengal", Email: "ishita.banerjee@example.in", Phone: "9830078901", Credit: 97500.60, Status: StatusActive},
	{Name: "Aditya Joshi", Address: "8 FC Road, Pune, Maharashtra", Email: "aditya.joshi@example.in", Phone: "9822089012", Credit: 142300.00, Status: StatusActive},
	{Name: "Sneha Kulkarni", Address: "19 Dadar West, Mumbai, Maharashtra", Email: "sneha.kulkarni@example.in", Phone: "9820090123", Credit: 275000.00, Status: StatusActive},
	{Name: "Karan Malhotra", Address: "4 Sector 17, Chandigarh", Email: "karan.malhotra@example.in", Phone: "9814001234", Credit: 18500.40, Status: StatusInactive},
	{Name: "Meera Pillai", Address: "62 Kowdiar, Thiruvananthapuram, Kerala", Email: "meera.pillai@example.in", Phone: "9846012345", Credit: 76000.00, Status: StatusActive},
	{Name: "Siddharth Rao", Address: "11 Jayanagar, Bengaluru, Karnataka", Email: "siddharth.rao@example.in", Phone: "9886023456", Credit: 189999.99, Status: StatusActive},
	{Name: "Neha Agarwal", Address: "27 Ashok Marg, Lucknow, Uttar Pradesh", Email: "neha.agarwal@example.in", Phone: "9415134567", Credit: 54000.00, Status: StatusActive},
	{Name: "Rahul Verma", Address: "90 Arera Colony, Bhopal, Madhya Pradesh", Email: "rahul.verma@example.in", Phone: "9826045678", Credit: 12000.00, Status: StatusInactive},
	{Name: "Pooja Deshmukh", Address: "14 Dharampeth, Nagpur, Maharashtra", Email: "pooja.deshmukh@example.in", Phone: "9823056789", Credit: 88800.80, Status: StatusActive},
	{Name: "Manish Tiwari", Address: "3 Lanka, Varanasi, Uttar Pradesh", Email: "manish.tiwari@example.in", Phone: "9452067890", Credit: 41000.00, Status: StatusActive},
	{Name: "Divya Menon", Address: "38 Race Course, Coimbatore, Tamil Nadu", Email: "divya.menon@example.in", Phone: "9843078901", Credit: 133500.00, Status: StatusActive},
	{Name: "Harsh Mehta", Address: "71 Alkapuri, Vadodara, Gujarat", Email: "harsh.mehta@example.in", Phone: "9824089012", Credit: 99000.00, Status: StatusInactive},
	{Name: "Riya Chatterjee", Address: "5 Salt Lake, Kolkata, West Bengal", Email: "riya.chatterjee@example.in", Phone: "9831090123", Credit: 67250.30, Status: StatusActive},
	{Name: "Nikhil Saxena", Address: "22 Gomti Nagar, Lucknow, Uttar Pradesh", Email: "nikhil.saxena@example.in", Phone: "9415201234", Credit: 154000.00, Status: StatusActive},
	{Name: "Tanvi Bhatt", Address: "9 Satellite, Ahmedabad, Gujarat", Email: "tanvi.bhatt@example.in", Phone: "9825112345", Credit: 23000.00, Status: StatusActive},
	{Name: "Yash Chauhan", Address: "16 Rajpur Road, Dehradun, Uttarakhand", Email: "yash.chauhan@example.in", Phone: "9412023456", Credit: 8000.00, Status: StatusInactive},
	{Name: "Lakshmi Krishnan", Address: "44 Mylapore, Chennai, Tamil Nadu", Email: "lakshmi.krishnan@example.in", Phone: "9841134567", Credit: 312000.00, Status: StatusActive},
	{Name: "Dev Khanna", Address: "2 Connaught Place, New Delhi, Delhi", Email: "dev.khanna@example.in", Phone: "9811045678", Credit: 176400.00, Status: StatusActive},
}

// SeedSampleData loads SampleCustomers into an empty repository. It returns
// the number of records inserted, which is zero when data already exists.
func SeedSampleData(ctx context.Context, repo CustomerRepository) (int, error) {
	n, err := repo.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n.Total > 0 {
		return 0, nil
	}

	for i, c := range SampleCustomers {
		if _, err := repo.Create(ctx, c); err != nil {
			return i, fmt.Errorf("failed to seed %s: %w", c.Email, err)
		}
	}
	return len(SampleCustomers), nil
}
