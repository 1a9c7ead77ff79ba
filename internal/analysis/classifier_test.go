package analysis

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Classifier", func() {
	var (
		classifier *Classifier
		doc        *StructuredDocument
		billType   BillType
	)

	BeforeEach(func() {
		catalog, err := DefaultCatalog()
		Expect(err).NotTo(HaveOccurred())
		classifier = NewClassifier(catalog)
		doc = &StructuredDocument{}
	})

	JustBeforeEach(func() {
		billType = classifier.Classify(doc)
	})

	When("the provider is mapped to a single bill type", func() {
		BeforeEach(func() {
			doc.ServiceProvider = "Verizon Wireless"
		})

		It("should classify from the provider", func() {
			Expect(billType).To(Equal(BillTypeMobile))
		})
	})

	When("the provider appears under more than one bill type", func() {
		BeforeEach(func() {
			doc.ServiceProvider = "Comcast"
		})

		It("should resolve to the earlier declared type", func() {
			Expect(billType).To(Equal(BillTypeInternet))
		})
	})

	When("the provider name is embedded in a longer string", func() {
		BeforeEach(func() {
			doc.ServiceProvider = "State Farm Insurance Companies"
		})

		It("should still match", func() {
			Expect(billType).To(Equal(BillTypeInsurance))
		})
	})

	When("no provider is known and the text carries type keywords", func() {
		BeforeEach(func() {
			doc.FullText = "High speed internet service. Download speed up to 400 Mbps. WiFi included."
		})

		It("should classify from keyword counts", func() {
			Expect(billType).To(Equal(BillTypeInternet))
		})
	})

	When("two bill types score equally", func() {
		BeforeEach(func() {
			doc.FullText = "wireless internet"
		})

		It("should resolve the tie in declaration order", func() {
			Expect(billType).To(Equal(BillTypeMobile))
		})
	})

	When("the document is empty", func() {
		It("should return unknown", func() {
			Expect(billType).To(Equal(BillTypeUnknown))
		})
	})

	When("the text matches no keywords", func() {
		BeforeEach(func() {
			doc.FullText = "Lorem ipsum dolor sit amet."
		})

		It("should return unknown", func() {
			Expect(billType).To(Equal(BillTypeUnknown))
		})
	})

	When("the provider is unmapped but the text carries keywords", func() {
		BeforeEach(func() {
			doc.ServiceProvider = "Acme Utilities LLC"
			doc.FullText = "Your electricity usage this month was 500 kWh. Meter reading on 3/1."
		})

		It("should fall back to keyword scoring", func() {
			Expect(billType).To(Equal(BillTypeUtility))
		})
	})
})
